package util

import (
	"net"
	"testing"
)

func TestCheckNumericHost(t *testing.T) {
	tests := []struct {
		host    string
		wantErr bool
	}{
		{"10.0.0.1", false},
		{"::1", false},
		{"fe80::1", false},
		{"localhost", true},
		{"scanme.example", true},
		{"", true},
		{"10.0.0.256", true},
	}
	for _, tt := range tests {
		err := CheckNumericHost(tt.host)
		if (err != nil) != tt.wantErr {
			t.Errorf("CheckNumericHost(%q) err=%v wantErr=%v", tt.host, err, tt.wantErr)
		}
	}
}

func TestFormatAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"1.2.3.4", 22, "1.2.3.4:22"},
		{"::1", 53, "[::1]:53"},
		{"scanme.example", 0, "scanme.example:0"},
		{"127.0.0.1", 65535, "127.0.0.1:65535"},
	}
	for _, tt := range tests {
		if got := FormatAddr(tt.host, tt.port); got != tt.want {
			t.Errorf("FormatAddr(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	if port < 1 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
	conn, err := net.Dial("tcp", FormatAddr("127.0.0.1", port))
	if err == nil {
		conn.Close()
		t.Skipf("port %d was reused by another process", port)
	}
}
