package extension

import (
	"testing"
	"time"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{EvictAfter: 3})

	if cfg.EvictAfter != 3 {
		t.Errorf("EvictAfter = %d, want 3", cfg.EvictAfter)
	}
	defaults := DefaultConfig()
	if cfg.BasePath != defaults.BasePath || cfg.ProcessSchedule != defaults.ProcessSchedule {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.MaxChargesPerRun != 1 || cfg.Concurrency != defaults.Concurrency {
		t.Errorf("engine defaults not applied: %+v", cfg)
	}
}

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name string
		yaml Config
		prog Config
		want func(Config) bool
	}{
		{
			name: "yaml wins for set fields",
			yaml: Config{EvictAfter: 2, Escrow: "0xYaml"},
			prog: Config{EvictAfter: 5, Escrow: "0xProg"},
			want: func(c Config) bool { return c.EvictAfter == 2 && c.Escrow == "0xYaml" },
		},
		{
			name: "programmatic fills gaps",
			yaml: Config{},
			prog: Config{MaxChargesPerRun: 4, ProcessTimeout: time.Minute},
			want: func(c Config) bool { return c.MaxChargesPerRun == 4 && c.ProcessTimeout == time.Minute },
		},
		{
			name: "programmatic flags override",
			yaml: Config{},
			prog: Config{DisableScheduler: true, DisableRoutes: true},
			want: func(c Config) bool { return c.DisableScheduler && c.DisableRoutes },
		},
		{
			name: "defaults last",
			yaml: Config{},
			prog: Config{},
			want: func(c Config) bool { return c.BasePath == "/pullpay" && c.EvictAfter == 1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeConfigurations(tt.yaml, tt.prog)
			if !tt.want(got) {
				t.Errorf("unexpected merge result: %+v", got)
			}
		})
	}
}
