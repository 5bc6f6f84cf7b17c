package http

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestListenAndServe(t *testing.T) {
	t.Run("servers stop when the context is canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			defer close(done)
			ListenAndServe(ctx, &http.Server{Addr: "127.0.0.1:0"})
		}()

		time.Sleep(time.Millisecond * 50)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second * 5):
			t.Fatal("servers did not stop")
		}
	})

	t.Run("servers stop when one fails", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			ListenAndServe(context.Background(),
				&http.Server{Addr: "127.0.0.1:0"},
				&http.Server{Addr: "127.0.0.1:-1"},
			)
		}()

		select {
		case <-done:
		case <-time.After(time.Second * 5):
			t.Fatal("servers did not stop")
		}
	})
}
