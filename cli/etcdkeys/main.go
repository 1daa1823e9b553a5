// etcdkeys is a command line client for the etcd v2 keys API.
package main

func main() {
	Execute()
}
