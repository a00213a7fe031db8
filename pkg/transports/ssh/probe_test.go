package ssh

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDfAvailable(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    int64
		wantErr bool
	}{
		{
			name: "typical output",
			output: "Filesystem     1024-blocks      Used Available Capacity Mounted on\n" +
				"/dev/sda1        103081248  51540624  51540624      50% /u01",
			want: 51540624 * 1024,
		},
		{
			name: "long device name wraps onto data line",
			output: "Filesystem 1024-blocks Used Available Capacity Mounted on\n" +
				"/dev/mapper/vg_data-lv_oradata 515404564 101540624 413863940 20% /u01/app/oracle",
			want: 413863940 * 1024,
		},
		{
			name:    "missing data line",
			output:  "Filesystem     1024-blocks      Used Available Capacity Mounted on",
			wantErr: true,
		},
		{
			name:    "garbage column",
			output:  "header\n/dev/sda1 a b c d e",
			wantErr: true,
		},
		{
			name:    "empty",
			output:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDfAvailable(tt.output)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("available = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDialerClientFor(t *testing.T) {
	dialer := NewDialer(Config{
		User:              "oracle",
		AuthMethod:        AuthMethodPassword,
		Password:          "secret",
		ConnectionTimeout: 1000000000,
		CommandTimeout:    1000000000,
	})

	client, err := dialer.ClientFor("db01.example.com")
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	if client.config.Host != "db01.example.com" {
		t.Errorf("host = %s, want db01.example.com", client.config.Host)
	}
	if client.config.Port != 22 {
		t.Errorf("port = %d, want default 22", client.config.Port)
	}
	if client.IsConnected() {
		t.Error("new client must not report connected")
	}
}

// The CLI builds its dialer from a key-auth template that never sets
// CommandTimeout. The dialer must fill the timeout defaults so the
// per-host configs pass validation.
func TestDialerDefaultsTimeoutsForKeyAuthTemplate(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, []byte("key material"), 0600); err != nil {
		t.Fatal(err)
	}

	dialer := NewDialer(Config{
		User:                  "oracle",
		AuthMethod:            AuthMethodKey,
		PrivateKeyPath:        keyPath,
		KnownHostsPath:        filepath.Join(t.TempDir(), "known_hosts"),
		StrictHostKeyChecking: false,
		ConnectionTimeout:     30 * time.Second,
	})

	client, err := dialer.ClientFor("db01.example.com")
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	if client.config.CommandTimeout <= 0 {
		t.Errorf("command timeout not defaulted: %v", client.config.CommandTimeout)
	}

	// The template also works with no timeouts at all.
	dialer = NewDialer(Config{
		User:           "oracle",
		AuthMethod:     AuthMethodKey,
		PrivateKeyPath: keyPath,
	})
	client, err = dialer.ClientFor("db02.example.com")
	if err != nil {
		t.Fatalf("ClientFor with zero timeouts: %v", err)
	}
	if client.config.ConnectionTimeout <= 0 || client.config.CommandTimeout <= 0 {
		t.Errorf("timeouts not defaulted: connect=%v command=%v",
			client.config.ConnectionTimeout, client.config.CommandTimeout)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid password config", mutate: func(c *Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Host = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "missing user", mutate: func(c *Config) { c.User = "" }, wantErr: true},
		{name: "password auth without password", mutate: func(c *Config) { c.Password = "" }, wantErr: true},
		{name: "unknown auth method", mutate: func(c *Config) { c.AuthMethod = "kerberos" }, wantErr: true},
		{name: "zero connection timeout", mutate: func(c *Config) { c.ConnectionTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("db01.example.com", "oracle")
			cfg.AuthMethod = AuthMethodPassword
			cfg.Password = "secret"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
