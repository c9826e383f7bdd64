package s3

import (
	"context"
	"os"
	"testing"

	"github.com/mschirtzinger/beadboard/internal/board/kv/kvtest"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		want    Config
		wantErr bool
	}{
		{
			name: "bucket only",
			dsn:  "s3://boards",
			want: Config{Bucket: "boards"},
		},
		{
			name: "full",
			dsn:  "s3://AKID:secret@boards/team/a?region=eu-west-1&endpoint=http://localhost:9000&path_style=true",
			want: Config{
				Bucket:          "boards",
				Prefix:          "team/a",
				Region:          "eu-west-1",
				Endpoint:        "http://localhost:9000",
				AccessKeyID:     "AKID",
				SecretAccessKey: "secret",
				PathStyle:       true,
			},
		},
		{name: "wrong scheme", dsn: "http://boards", wantErr: true},
		{name: "no bucket", dsn: "s3:///prefix", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDSN(tt.dsn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDSN() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDSN() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestObjectKey(t *testing.T) {
	s := &Store{prefix: "team"}
	if got := s.objectKey("board:layout"); got != "team/board:layout.json" {
		t.Errorf("objectKey() = %q", got)
	}

	s = &Store{}
	if got := s.objectKey("a/b"); got != "a%2Fb.json" {
		t.Errorf("objectKey() = %q", got)
	}
}

// TestStoreContract runs against a bucket when BB_TEST_S3_DSN is set.
func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("BB_TEST_S3_DSN")
	if dsn == "" {
		t.Skip("BB_TEST_S3_DSN not set")
	}

	cfg, err := ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN() failed: %v", err)
	}
	cfg.Prefix = cfg.Prefix + "/kvtest-" + t.Name()

	store, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	kvtest.Run(t, store)
}
