package etcd

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KarpelesLab/pjson"
)

// fakeEtcd is a small in-memory implementation of the etcd v2 keys API.
type fakeEtcd struct {
	mu      sync.Mutex
	entries map[string]*fakeEntry
	index   uint64

	// last request seen
	lastAuth  string
	lastQuery url.Values
	lastForm  url.Values
}

type fakeEntry struct {
	value    string
	dir      bool
	ttl      int64
	created  uint64
	modified uint64
}

type fakeNode struct {
	Key           string      `json:"key,omitempty"`
	Value         string      `json:"value,omitempty"`
	Dir           bool        `json:"dir,omitempty"`
	Expiration    string      `json:"expiration,omitempty"`
	TTL           int64       `json:"ttl,omitempty"`
	Nodes         []*fakeNode `json:"nodes,omitempty"`
	CreatedIndex  uint64      `json:"createdIndex,omitempty"`
	ModifiedIndex uint64      `json:"modifiedIndex,omitempty"`
}

type fakeResult struct {
	Action   string    `json:"action"`
	Node     *fakeNode `json:"node,omitempty"`
	PrevNode *fakeNode `json:"prevNode,omitempty"`
}

type fakeError struct {
	Code    int    `json:"errorCode"`
	Message string `json:"message"`
	Cause   string `json:"cause"`
	Index   uint64 `json:"index"`
}

// newTestClient starts a fake etcd and returns a client bound to it.
func newTestClient(t *testing.T) (*Client, *fakeEtcd, *httptest.Server) {
	t.Helper()
	f := &fakeEtcd{entries: make(map[string]*fakeEntry)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	reg := NewRegistry()
	t.Cleanup(func() { reg.Close() })
	tr, err := reg.Get(Options{Addrs: []string{srv.Listener.Addr().String()}, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("failed to create transport: %s", err)
	}
	return NewClient(tr, nil), f, srv
}

func (f *fakeEtcd) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.lastAuth = r.Header.Get("Authorization")
	f.lastQuery = r.URL.Query()
	f.lastForm = r.PostForm

	if r.URL.Path == "/version" {
		f.reply(w, http.StatusOK, map[string]string{"etcdserver": "2.3.8", "etcdcluster": "2.3.0"})
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/v2/keys") {
		http.NotFound(w, r)
		return
	}
	key := "/" + strings.Trim(strings.TrimPrefix(r.URL.Path, "/v2/keys"), "/")

	switch r.Method {
	case "GET":
		f.get(w, key, f.lastQuery.Get("recursive") == "true")
	case "PUT":
		f.put(w, key, "")
	case "POST":
		f.put(w, strings.TrimRight(key, "/")+"/"+fmt.Sprintf("%020d", f.index+1), "create")
	case "DELETE":
		f.delete(w, key)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeEtcd) reply(w http.ResponseWriter, status int, v any) {
	data, _ := pjson.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Etcd-Index", strconv.FormatUint(f.index, 10))
	w.Header().Set("X-Raft-Index", strconv.FormatUint(f.index+1000, 10))
	w.Header().Set("X-Raft-Term", "3")
	w.WriteHeader(status)
	w.Write(data)
}

func (f *fakeEtcd) fail(w http.ResponseWriter, status, code int, msg, cause string) {
	f.reply(w, status, &fakeError{Code: code, Message: msg, Cause: cause, Index: f.index})
}

func (f *fakeEtcd) lookup(key string) (*fakeEntry, bool) {
	if key == "/" {
		return &fakeEntry{dir: true}, true
	}
	e, ok := f.entries[key]
	return e, ok
}

func (f *fakeEtcd) node(key string, e *fakeEntry, depth int) *fakeNode {
	n := &fakeNode{Value: e.value, Dir: e.dir, TTL: e.ttl, CreatedIndex: e.created, ModifiedIndex: e.modified}
	if key != "/" {
		n.Key = key
	}
	if e.ttl > 0 {
		n.Expiration = time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC).Format(time.RFC3339Nano)
	}
	if !e.dir || depth == 0 {
		return n
	}
	for _, k := range f.children(key) {
		n.Nodes = append(n.Nodes, f.node(k, f.entries[k], depth-1))
	}
	return n
}

func (f *fakeEtcd) children(dir string) []string {
	prefix := strings.TrimRight(dir, "/") + "/"
	var res []string
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) && !strings.Contains(k[len(prefix):], "/") {
			res = append(res, k)
		}
	}
	sort.Strings(res)
	return res
}

func (f *fakeEtcd) get(w http.ResponseWriter, key string, recursive bool) {
	e, ok := f.lookup(key)
	if !ok {
		f.fail(w, http.StatusNotFound, 100, "Key not found", key)
		return
	}
	depth := 1
	if recursive {
		depth = -1
	}
	f.reply(w, http.StatusOK, &fakeResult{Action: "get", Node: f.node(key, e, depth)})
}

func (f *fakeEtcd) put(w http.ResponseWriter, key, action string) {
	q, form := f.lastQuery, f.lastForm
	prev, exists := f.lookup(key)

	switch q.Get("prevExist") {
	case "false":
		if exists {
			f.fail(w, http.StatusPreconditionFailed, 105, "Key already exists", key)
			return
		}
	case "true":
		if !exists {
			f.fail(w, http.StatusNotFound, 100, "Key not found", key)
			return
		}
	}
	if pv := q.Get("prevValue"); pv != "" && (!exists || prev.value != pv) {
		f.fail(w, http.StatusPreconditionFailed, 101, "Compare failed", "["+pv+" != "+valueOf(prev)+"]")
		return
	}
	if q.Get("dir") == "true" && exists && !prev.dir {
		f.fail(w, http.StatusForbidden, 102, "Not a directory", key)
		return
	}

	var ttl int64
	if v := form.Get("ttl"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			f.fail(w, http.StatusBadRequest, 202, "The given TTL in POST form is not a number", "Update")
			return
		}
		ttl = n
	}

	f.index++
	e := &fakeEntry{modified: f.index, created: f.index, ttl: ttl}
	if exists {
		e.created = prev.created
	}
	if form.Get("dir") == "true" || q.Get("dir") == "true" {
		e.dir = true
	} else {
		e.value = form.Get("value")
	}

	// parent directories are created on the fly
	for p := key; ; {
		i := strings.LastIndexByte(p, '/')
		if i <= 0 {
			break
		}
		p = p[:i]
		if _, ok := f.entries[p]; !ok {
			f.entries[p] = &fakeEntry{dir: true, created: f.index, modified: f.index}
		}
	}
	f.entries[key] = e

	if action == "" {
		switch q.Get("prevExist") {
		case "false":
			action = "create"
		case "true":
			action = "update"
		default:
			action = "set"
		}
	}
	res := &fakeResult{Action: action, Node: f.node(key, e, 0)}
	status := http.StatusCreated
	if exists {
		res.PrevNode = f.node(key, prev, 0)
		status = http.StatusOK
	}
	f.reply(w, status, res)
}

func (f *fakeEtcd) delete(w http.ResponseWriter, key string) {
	e, ok := f.lookup(key)
	if !ok {
		f.fail(w, http.StatusNotFound, 100, "Key not found", key)
		return
	}
	if key == "/" {
		f.fail(w, http.StatusForbidden, 107, "Root is read only", key)
		return
	}
	if e.dir {
		if f.lastQuery.Get("dir") != "true" {
			f.fail(w, http.StatusForbidden, 102, "Not a file", key)
			return
		}
		if len(f.children(key)) > 0 && f.lastQuery.Get("recursive") != "true" {
			f.fail(w, http.StatusForbidden, 108, "Directory not empty", key)
			return
		}
	}
	prefix := key + "/"
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			delete(f.entries, k)
		}
	}
	delete(f.entries, key)
	f.index++
	f.reply(w, http.StatusOK, &fakeResult{
		Action:   "delete",
		Node:     &fakeNode{Key: key, Dir: e.dir, ModifiedIndex: f.index, CreatedIndex: e.created},
		PrevNode: f.node(key, e, 0),
	})
}

func valueOf(e *fakeEntry) string {
	if e == nil {
		return ""
	}
	return e.value
}
