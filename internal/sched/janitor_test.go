package sched

import (
    "context"
    "testing"
    "time"
)

func TestRegisterCacheSweep_RejectsBadSpec(t *testing.T) {
    j := NewJanitor(nil)
    if err := j.RegisterCacheSweep("not a cron spec", func(ctx context.Context) error { return nil }); err == nil {
        t.Fatal("want error for malformed spec")
    }
}

func TestJanitor_RunsSweepOnSchedule(t *testing.T) {
    j := NewJanitor(nil)
    fired := make(chan struct{}, 1)
    err := j.RegisterCacheSweep("* * * * * *", func(ctx context.Context) error {
        select {
        case fired <- struct{}{}:
        default:
        }
        return nil
    })
    if err != nil { t.Fatalf("RegisterCacheSweep: %v", err) }

    j.Start()
    defer j.Stop()

    select {
    case <-fired:
    case <-time.After(3 * time.Second):
        t.Fatal("sweep never fired")
    }
}
