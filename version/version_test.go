package version

import "testing"

func TestInfo_Short(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"bare", Info{Version: "dev"}, "dev"},
		{"commit", Info{Version: "1.0.0", GitCommit: "abc1234"}, "1.0.0-abc1234"},
		{"dirty", Info{Version: "1.0.0", GitCommit: "abc1234", Dirty: true}, "1.0.0-abc1234-dirty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Short(); got != tt.want {
				t.Errorf("Short() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInfo_String(t *testing.T) {
	info := Info{Version: "1.0.0", BuildTime: "2024-01-15T10:30:00Z"}
	if got, want := info.String(), "1.0.0 (built 2024-01-15T10:30:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestGet_LinkTimeValuesWin(t *testing.T) {
	orig := [3]string{Version, GitCommit, BuildTime}
	defer func() { Version, GitCommit, BuildTime = orig[0], orig[1], orig[2] }()

	Version, GitCommit, BuildTime = "2.1.0", "deadbeefcafe", "2024-01-15T10:30:00Z"
	info := Get()
	if info.Version != "2.1.0" || info.GitCommit != "deadbee" || info.BuildTime != "2024-01-15T10:30:00Z" {
		t.Errorf("Get() = %+v", info)
	}
	if UserAgent() != "restkit/2.1.0" {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}
