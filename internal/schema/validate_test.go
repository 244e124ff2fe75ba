package schema

import (
	"testing"
	"time"
)

func TestValidateRecord(t *testing.T) {
	valid := Record{
		ID:        "000000000001-abcd1234",
		Kind:      KindHTTP,
		Category:  CategoryOther,
		Timestamp: time.Now().UTC(),
		SourceIP:  "10.0.0.1",
	}

	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr bool
	}{
		{"valid", func(r *Record) {}, false},
		{"valid without source ip", func(r *Record) { r.SourceIP = "" }, false},
		{"unknown kind", func(r *Record) { r.Kind = "carrier_pigeon" }, true},
		{"empty id", func(r *Record) { r.ID = "" }, true},
		{"empty category", func(r *Record) { r.Category = "" }, true},
		{"zero timestamp", func(r *Record) { r.Timestamp = time.Time{} }, true},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := valid
			tt.mutate(&rec)
			err := v.Validate(&rec)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
