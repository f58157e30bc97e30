package postgres

import "testing"

func TestPoolConfigKeepsAwkwardPasswords(t *testing.T) {
	pc, err := poolConfig(Config{Host: "db", Database: "desk", User: "desk", Password: "p@ss word'1", MaxConns: 4, MinConns: 9})
	if err != nil {
		t.Fatalf("pool config: %v", err)
	}
	cc := pc.ConnConfig
	if cc.Host != "db" || cc.Port != 5432 || cc.Database != "desk" || cc.User != "desk" {
		t.Fatalf("unexpected conn config %s:%d/%s as %s", cc.Host, cc.Port, cc.Database, cc.User)
	}
	if cc.Password != "p@ss word'1" {
		t.Fatalf("password mangled: %q", cc.Password)
	}
	if pc.MaxConns != 4 || pc.MinConns != 4 {
		t.Fatalf("expected min clamped to max 4, got %d/%d", pc.MaxConns, pc.MinConns)
	}
}

func TestPoolConfigNeedsHost(t *testing.T) {
	if _, err := poolConfig(Config{}); err == nil {
		t.Fatalf("expected an error without host")
	}
}
