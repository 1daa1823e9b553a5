package etcd

import (
	"context"
	"testing"
	"time"
)

// TestTimeUnmarshalJSON tests the UnmarshalJSON method of Time
func TestTimeUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		json []byte
		want time.Time
	}{
		{"rfc3339", []byte(`"2013-09-10T18:02:58Z"`), time.Date(2013, 9, 10, 18, 2, 58, 0, time.UTC)},
		{"nanoseconds", []byte(`"2013-12-04T12:01:21.874888581Z"`), time.Date(2013, 12, 4, 12, 1, 21, 874888581, time.UTC)},
		{"null", []byte(`null`), time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tm Time
			err := tm.UnmarshalJSON(tt.json)
			if err != nil {
				t.Errorf("UnmarshalJSON(%s) error = %v", tt.json, err)
			}
			if !tm.Equal(tt.want) {
				t.Errorf("UnmarshalJSON(%s) = %s, want %s", tt.json, tm, tt.want)
			}
		})
	}

	var tm Time
	if err := tm.UnmarshalJSON([]byte(`"yesterday"`)); err == nil {
		t.Errorf("UnmarshalJSON(yesterday) should fail")
	}
}

// TestTimeMarshalJSON tests the MarshalJSON method of Time
func TestTimeMarshalJSON(t *testing.T) {
	tm := Time{time.Date(2023, 5, 15, 14, 30, 45, 0, time.UTC)}

	data, err := tm.MarshalJSON()
	if err != nil {
		t.Errorf("MarshalJSON error = %v", err)
	}
	if string(data) != `"2023-05-15T14:30:45Z"` {
		t.Errorf("MarshalJSON = %s", data)
	}
}

// TestTimeContextJSON tests the context-based JSON methods
func TestTimeContextJSON(t *testing.T) {
	tm := Time{time.Date(2023, 5, 15, 14, 30, 45, 123000000, time.UTC)}
	ctx := context.Background()

	data, err := tm.MarshalContextJSON(ctx)
	if err != nil {
		t.Errorf("MarshalContextJSON error = %v", err)
	}

	var tm2 Time
	err = tm2.UnmarshalContextJSON(ctx, data)
	if err != nil {
		t.Errorf("UnmarshalContextJSON error = %v", err)
	}
	if !tm2.Equal(tm.Time) {
		t.Errorf("round trip = %s, want %s", tm2, tm)
	}

	err = tm2.UnmarshalContextJSON(ctx, []byte(`null`))
	if err != nil {
		t.Errorf("UnmarshalContextJSON(null) error = %v", err)
	}
}
