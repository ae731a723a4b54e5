package registry

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatusRegistry_ChangeOnlyNotification(t *testing.T) {
	r := NewStatusRegistry()
	if err := r.Register(Indicator{ID: "net"}); err != nil {
		t.Fatal(err)
	}

	var notifications []string
	r.Subscribe(func(id, status string) {
		notifications = append(notifications, id+"="+status)
	})

	if err := r.UpdateStatus("net", "up"); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateStatus("net", "up"); err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateStatus("net", "down"); err != nil {
		t.Fatal(err)
	}

	want := []string{"net=up", "net=down"}
	if len(notifications) != len(want) {
		t.Fatalf("notifications = %v, want %v", notifications, want)
	}
	for i := range want {
		if notifications[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, notifications[i], want[i])
		}
	}
}

func TestStatusRegistry_ListOrder(t *testing.T) {
	r := NewStatusRegistry()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(r.Register(Indicator{ID: "c"}))                // default 100, first inserted
	must(r.Register(Indicator{ID: "a", Priority: 10}))  // lowest priority value
	must(r.Register(Indicator{ID: "d"}))                // default 100, after c
	must(r.Register(Indicator{ID: "b", Priority: 50}))

	var ids []string
	for _, st := range r.List() {
		ids = append(ids, st.Indicator.ID)
	}
	want := []string{"a", "b", "c", "d"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("list order = %v, want %v", ids, want)
		}
	}
}

func TestStatusRegistry_SubscribeDisposer(t *testing.T) {
	r := NewStatusRegistry()
	if err := r.Register(Indicator{ID: "x"}); err != nil {
		t.Fatal(err)
	}

	count := 0
	dispose := r.Subscribe(func(id, status string) { count++ })
	if err := r.UpdateStatus("x", "1"); err != nil {
		t.Fatal(err)
	}
	dispose()
	if err := r.UpdateStatus("x", "2"); err != nil {
		t.Fatal(err)
	}

	if count != 1 {
		t.Errorf("notifications after dispose = %d, want 1", count)
	}
}

func TestRouteRegistry_MethodKeyed(t *testing.T) {
	r := NewRouteRegistry()
	noop := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {})

	if err := r.Register(Route{Method: "GET", Path: "/x", Handler: noop}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(Route{Method: "POST", Path: "/x", Handler: noop}); err != nil {
		t.Errorf("same path different method should register: %v", err)
	}
	if err := r.Register(Route{Method: "get", Path: "/x", Handler: noop}); err == nil {
		t.Error("duplicate (method, path) should fail")
	}

	if _, ok := r.Get("GET", "/x"); !ok {
		t.Error("GET /x not found")
	}
}

func TestSafeRegister(t *testing.T) {
	ok := SafeRegister(nil, "good", func() error { return nil })
	if !ok.OK {
		t.Errorf("outcome = %+v, want ok", ok)
	}

	bad := SafeRegister(nil, "panics", func() error { panic("boom") })
	if bad.OK || bad.Reason == "" {
		t.Errorf("outcome = %+v, want failure with reason", bad)
	}
}

func TestServiceRegistry(t *testing.T) {
	r := NewServiceRegistry()
	if err := r.Register("store", "core", map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("store", "core", 1); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate service err = %v", err)
	}

	svc, ok := ServiceAs[map[string]int](r, "store")
	if !ok || svc["a"] != 1 {
		t.Errorf("ServiceAs = %v ok=%v", svc, ok)
	}
	if _, ok := ServiceAs[string](r, "store"); ok {
		t.Error("wrong type assertion should fail")
	}
}
