package etcd

import (
	"context"
	"time"

	"github.com/KarpelesLab/pjson"
)

// Time is a node expiration time, encoded by etcd as an RFC 3339 string.
type Time struct {
	time.Time
}

func (u *Time) UnmarshalJSON(data []byte) error {
	// Ignore null, like in the main JSON package.
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := pjson.Unmarshal(data, &s); err != nil {
		return err
	}
	return u.parse(s)
}

func (u Time) MarshalJSON() ([]byte, error) {
	return pjson.Marshal(u.UTC().Format(time.RFC3339Nano))
}

func (u *Time) UnmarshalContextJSON(ctx context.Context, data []byte) error {
	// Ignore null, like in the main JSON package.
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := pjson.UnmarshalContext(ctx, data, &s); err != nil {
		return err
	}
	return u.parse(s)
}

func (u Time) MarshalContextJSON(ctx context.Context) ([]byte, error) {
	return pjson.MarshalContext(ctx, u.UTC().Format(time.RFC3339Nano))
}

func (u *Time) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	u.Time = t
	return nil
}
