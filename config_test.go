package alloc

import (
	"strings"
	"testing"

	"github.com/holmberd/go-alloc/internal/testutils"
)

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		config  Config
		pool    PagePooler
		wantErr string
		alsoErr string
	}{
		{
			name:   "Valid default config",
			config: DefaultConfig(),
			pool:   &testutils.MockPagePool{},
		},
		{
			name:    "Missing logger",
			config:  Config{},
			pool:    &testutils.MockPagePool{},
			wantErr: "invalid config: Logger must not be nil",
		},
		{
			name:    "Missing page pool",
			config:  DefaultConfig(),
			wantErr: "invalid config: page pool must not be nil",
		},
		{
			name:    "Wrong page size",
			config:  DefaultConfig(),
			pool:    &testutils.WrongSizePagePool{},
			wantErr: "invalid config: page pool page size 8192 must be 4096",
		},
		{
			name:    "Every problem is reported",
			config:  Config{},
			wantErr: "invalid config: Logger must not be nil",
			alsoErr: "invalid config: page pool must not be nil",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate(tc.pool)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q, got nil", tc.wantErr)
			}
			for _, want := range []string{tc.wantErr, tc.alsoErr} {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error containing %q, got %q", want, err.Error())
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Logger == nil {
		t.Fatal("expected default logger")
	}
	if !c.ReclaimPages {
		t.Error("expected page reclamation to be enabled by default")
	}
	if th := DefaultPagePoolConfig().FreeThreshold; th != 0 {
		t.Errorf("expected default free threshold 0, got %d", th)
	}
}
