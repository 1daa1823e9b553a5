package main

import (
	"fmt"
	"strconv"

	"github.com/KarpelesLab/etcd"
	"github.com/KarpelesLab/pjson"
	"github.com/KarpelesLab/typutil"
	"github.com/KarpelesLab/webutil"
)

// parseCond reads set conditions given either as a JSON object or as a query
// string, such as `prevValue=old&prevIndex=12`.
func parseCond(s string) (*etcd.SetOptions, error) {
	opts := &etcd.SetOptions{}
	if s == "" {
		return opts, nil
	}

	var p map[string]any
	if s[0] == '{' {
		if err := pjson.Unmarshal([]byte(s), &p); err != nil {
			return nil, fmt.Errorf("invalid condition: %w", err)
		}
	} else {
		p = webutil.ParsePhpQuery(s)
	}

	for k, v := range p {
		str, ok := typutil.AsString(v)
		if !ok {
			return nil, fmt.Errorf("invalid value for condition %s: %v", k, v)
		}
		switch k {
		case "prevValue":
			opts.PrevValue = str
		case "prevIndex":
			n, err := strconv.ParseUint(str, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid prevIndex %q: %w", str, err)
			}
			opts.PrevIndex = n
		case "prevExist":
			if str != "true" && str != "false" {
				return nil, fmt.Errorf("invalid prevExist %q", str)
			}
			opts.PrevExist = str
		default:
			return nil, fmt.Errorf("unknown condition %s", k)
		}
	}
	return opts, nil
}
