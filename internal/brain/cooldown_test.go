package brain

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLedger(t *testing.T, interval time.Duration) (*CooldownLedger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".last_api_call")
	return NewCooldownLedger(path, interval), path
}

func TestCooldownLedger_SpacesCalls(t *testing.T) {
	l, _ := testLedger(t, 200*time.Millisecond)

	l.Reserve()
	start := time.Now()
	l.Reserve()
	elapsed := time.Since(start)

	if elapsed < 150*time.Millisecond {
		t.Errorf("Second reserve returned after %v, want >= ~200ms", elapsed)
	}
}

func TestCooldownLedger_FirstCallImmediate(t *testing.T) {
	l, _ := testLedger(t, time.Minute)

	start := time.Now()
	l.Reserve()
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("First reserve blocked for %v", elapsed)
	}
}

func TestCooldownLedger_SurvivesRestart(t *testing.T) {
	l1, path := testLedger(t, time.Minute)
	l1.Reserve()
	recorded := l1.LastCall()

	// A new ledger on the same file models a process restart.
	l2 := NewCooldownLedger(path, time.Minute)
	loaded := l2.LastCall()
	if loaded.IsZero() {
		t.Fatal("Restarted ledger lost the timestamp")
	}
	if diff := loaded.Sub(recorded); diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("Timestamp drifted across restart: recorded %v, loaded %v", recorded, loaded)
	}
}

func TestCooldownLedger_WaitStartup(t *testing.T) {
	l1, path := testLedger(t, 300*time.Millisecond)
	l1.Reserve()

	l2 := NewCooldownLedger(path, 300*time.Millisecond)
	start := time.Now()
	l2.WaitStartup()
	elapsed := time.Since(start)

	// Remaining window plus the startup grace.
	if elapsed < 250*time.Millisecond {
		t.Errorf("WaitStartup returned after %v, want the remaining cooldown", elapsed)
	}
}

func TestCooldownLedger_WaitStartupExpired(t *testing.T) {
	l1, path := testLedger(t, 50*time.Millisecond)
	l1.Reserve()
	time.Sleep(100 * time.Millisecond)

	l2 := NewCooldownLedger(path, 50*time.Millisecond)
	start := time.Now()
	l2.WaitStartup()
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Expired cooldown still blocked for %v", elapsed)
	}
}

func TestCooldownLedger_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".last_api_call")
	if err := os.WriteFile(path, []byte("not a timestamp"), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewCooldownLedger(path, time.Minute)
	if !l.LastCall().IsZero() {
		t.Errorf("Corrupt file produced timestamp %v", l.LastCall())
	}

	// The next reserve must repair the file.
	l.Reserve()
	l2 := NewCooldownLedger(path, time.Minute)
	if l2.LastCall().IsZero() {
		t.Error("Reserve did not rewrite the corrupt file")
	}
}
