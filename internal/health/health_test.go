package health

import (
	"context"
	"sync"
	"testing"
	"time"
)

func alwaysHealthy(_ context.Context) Status {
	return Status{Healthy: true}
}

func TestEmptyRegistryIsHealthy(t *testing.T) {
	ok, statuses := NewRegistry().CheckAll(context.Background())
	if !ok {
		t.Fatal("a registry with no probes should report healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("statuses = %d, want none", len(statuses))
	}
}

func TestVerdictRequiresEveryProbe(t *testing.T) {
	r := NewRegistry()
	r.Register("engine", alwaysHealthy)
	r.Register("kafka", func(_ context.Context) Status {
		return Status{Healthy: false, Detail: "broker unreachable"}
	})
	r.Register("webhook", alwaysHealthy)

	ok, statuses := r.CheckAll(context.Background())
	if ok {
		t.Fatal("one failing probe must fail the verdict")
	}
	if len(statuses) != 3 {
		t.Fatalf("statuses = %d, want 3", len(statuses))
	}
	if statuses[1].Name != "kafka" || statuses[1].Detail != "broker unreachable" {
		t.Fatalf("statuses[1] = %+v, want the kafka failure in registration order", statuses[1])
	}
}

func TestRegistryFillsNameAndLatency(t *testing.T) {
	reg := NewRegistry()
	reg.Register("slow", func(_ context.Context) Status {
		time.Sleep(10 * time.Millisecond)
		return Status{Healthy: true}
	})

	_, statuses := reg.CheckAll(context.Background())
	if statuses[0].Name != "slow" {
		t.Errorf("Name = %q, want the registered name", statuses[0].Name)
	}
	if statuses[0].LatencyMS < 5 {
		t.Errorf("LatencyMS = %.3f, want at least 5", statuses[0].LatencyMS)
	}
}

func TestReRegisterReplacesProbe(t *testing.T) {
	r := NewRegistry()
	r.Register("engine", func(_ context.Context) Status {
		return Status{Healthy: false, Detail: "starting"}
	})
	r.Register("ingest", alwaysHealthy)
	r.Register("engine", alwaysHealthy)

	ok, statuses := r.CheckAll(context.Background())
	if !ok {
		t.Fatal("replaced probe should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("statuses = %d, want 2: re-registration must not duplicate", len(statuses))
	}
	if statuses[0].Name != "engine" {
		t.Fatalf("statuses[0].Name = %q, want re-registration to keep its slot", statuses[0].Name)
	}
}

func TestRegisterDuringCheckAll(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("probe", alwaysHealthy)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}
	wg.Wait()
}
