package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"walktale/pkg/guide"
	"walktale/pkg/model"
	"walktale/pkg/route"
)

type fakeGuide struct {
	mu        sync.Mutex
	touring   bool
	positions []model.Position
	hasPos    bool
	pos       model.Position
}

func (f *fakeGuide) StartTour(pos model.Position) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touring {
		return "", guide.ErrTourActive
	}
	f.touring = true
	f.pos, f.hasPos = pos, true
	return "tour-1", nil
}

func (f *fakeGuide) StopTour() (*model.TourReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.touring {
		return nil, guide.ErrNoTour
	}
	f.touring = false
	return &model.TourReport{TourID: "tour-1", DistanceMeters: 1200}, nil
}

func (f *fakeGuide) Touring() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touring
}

func (f *fakeGuide) OnPosition(pos model.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, pos)
	f.pos, f.hasPos = pos, true
}

func (f *fakeGuide) CurrentPosition() (model.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos, f.hasPos
}

func (f *fakeGuide) positionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.positions)
}

type fakeRoutes struct {
	mu        sync.Mutex
	destName  string
	cleared   int
	positions int
	routeErr  error
}

func (f *fakeRoutes) SetDestination(ctx context.Context, start, dest model.Position, name string) (*model.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.routeErr != nil {
		return nil, f.routeErr
	}
	f.destName = name
	return &model.Route{
		Destination:   dest,
		Polyline:      []model.Position{start, dest},
		Source:        model.RouteSourcePrimary,
		TotalDistance: 900,
	}, nil
}

func (f *fakeRoutes) ClearDestination() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeRoutes) OnPosition(ctx context.Context, pos model.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions++
}

func (f *fakeRoutes) Status(pos model.Position) route.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destName == "" {
		return route.Status{State: route.StateNoDestination}
	}
	return route.Status{State: route.StateOnRoute, DestinationName: f.destName, RemainingM: 450}
}

type fakeConcierge struct{}

func (fakeConcierge) AskGuide(ctx context.Context, pos model.Position, question string) (string, error) {
	return "You asked: " + question, nil
}

func (fakeConcierge) TravelDiary(ctx context.Context, report *model.TourReport) (string, error) {
	return "Dear diary, what a walk.", nil
}

type fakeSession struct {
	active bool
	id     string
}

func (f *fakeSession) Active() bool   { return f.active }
func (f *fakeSession) TourID() string { return f.id }

type fakePrefs struct {
	mu    sync.Mutex
	prefs map[string]string
}

func (f *fakePrefs) GetPref(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs[key], nil
}

func (f *fakePrefs) SetPref(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prefs == nil {
		f.prefs = map[string]string{}
	}
	f.prefs[key] = value
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeGuide, *fakeRoutes, *fakeSession) {
	t.Helper()
	g := &fakeGuide{}
	routes := &fakeRoutes{}
	sess := &fakeSession{}
	srv := NewServer("127.0.0.1:0",
		NewTourHandler(g, routes, fakeConcierge{}),
		NewPositionHandler(g, routes),
		NewStatusHandler(g, routes, sess),
		NewPrefsHandler(&fakePrefs{}, "en"),
		func() {})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts, g, routes, sess
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestTourLifecycle(t *testing.T) {
	ts, _, routes, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/tour/start", StartRequest{Lat: 40.4169, Lon: -3.7035, AccuracyM: 10})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}
	var started map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatal(err)
	}
	if started["tour_id"] != "tour-1" {
		t.Fatalf("unexpected tour id %q", started["tour_id"])
	}

	// Double start conflicts.
	resp2 := postJSON(t, ts.URL+"/api/tour/start", StartRequest{Lat: 40.4169, Lon: -3.7035})
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Fatalf("double start: status %d", resp2.StatusCode)
	}

	resp3 := postJSON(t, ts.URL+"/api/tour/stop", struct{}{})
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("stop: status %d", resp3.StatusCode)
	}
	var stopped StopResponse
	if err := json.NewDecoder(resp3.Body).Decode(&stopped); err != nil {
		t.Fatal(err)
	}
	if stopped.Report == nil || stopped.Report.TourID != "tour-1" {
		t.Fatalf("missing report: %+v", stopped)
	}
	if stopped.Diary == "" {
		t.Fatal("expected a travel diary in the stop response")
	}

	routes.mu.Lock()
	cleared := routes.cleared
	routes.mu.Unlock()
	if cleared != 1 {
		t.Fatalf("stop should clear the destination, cleared=%d", cleared)
	}

	resp4 := postJSON(t, ts.URL+"/api/tour/stop", struct{}{})
	resp4.Body.Close()
	if resp4.StatusCode != http.StatusConflict {
		t.Fatalf("stop without tour: status %d", resp4.StatusCode)
	}
}

func TestAskRequiresPosition(t *testing.T) {
	ts, g, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/tour/ask", AskRequest{Question: "what is this church?"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("ask without position: status %d", resp.StatusCode)
	}

	g.OnPosition(model.NewPosition(40.4169, -3.7035, 10, time.Now()))
	resp2 := postJSON(t, ts.URL+"/api/tour/ask", AskRequest{Question: "what is this church?"})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("ask: status %d", resp2.StatusCode)
	}
	var answer map[string]string
	if err := json.NewDecoder(resp2.Body).Decode(&answer); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer["answer"], "church") {
		t.Fatalf("unexpected answer %q", answer["answer"])
	}
}

func TestDestinationEndpoints(t *testing.T) {
	ts, g, routes, _ := newTestServer(t)

	// No position yet.
	resp := postJSON(t, ts.URL+"/api/destination", DestinationRequest{Lat: 40.42, Lon: -3.70, Name: "Plaza Mayor"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("destination without position: status %d", resp.StatusCode)
	}

	g.OnPosition(model.NewPosition(40.4169, -3.7035, 10, time.Now()))
	resp2 := postJSON(t, ts.URL+"/api/destination", DestinationRequest{Lat: 40.42, Lon: -3.70, Name: "Plaza Mayor"})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("destination: status %d", resp2.StatusCode)
	}
	var rt model.Route
	if err := json.NewDecoder(resp2.Body).Decode(&rt); err != nil {
		t.Fatal(err)
	}
	if rt.TotalDistance != 900 {
		t.Fatalf("unexpected route %+v", rt)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/destination", nil)
	resp3, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNoContent {
		t.Fatalf("clear destination: status %d", resp3.StatusCode)
	}
	routes.mu.Lock()
	defer routes.mu.Unlock()
	if routes.cleared != 1 {
		t.Fatalf("cleared=%d", routes.cleared)
	}
}

func TestPositionPostDispatches(t *testing.T) {
	ts, g, routes, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/position", model.NewPosition(40.4169, -3.7035, 10, time.Time{}))
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("position: status %d", resp.StatusCode)
	}
	if g.positionCount() != 1 {
		t.Fatalf("guide got %d fixes", g.positionCount())
	}
	routes.mu.Lock()
	defer routes.mu.Unlock()
	if routes.positions != 1 {
		t.Fatalf("route tracker got %d fixes", routes.positions)
	}

	// A fix without timestamp gets one stamped on ingest.
	pos, ok := g.CurrentPosition()
	if !ok || pos.Timestamp.IsZero() {
		t.Fatalf("expected a stamped fix, got %+v", pos)
	}
}

func TestPositionWebsocketFeed(t *testing.T) {
	ts, g, _, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/position"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 3; i++ {
		p := model.NewPosition(40.4169+float64(i)*0.0001, -3.7035, 10, time.Now())
		if err := conn.WriteJSON(p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	deadline := time.Now().Add(2 * time.Second)
	for g.positionCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := g.positionCount(); got != 3 {
		t.Fatalf("expected 3 fixes over websocket, got %d", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts, g, _, sess := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	var st StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if st.Touring || st.Position != nil {
		t.Fatalf("expected an idle empty status, got %+v", st)
	}

	g.OnPosition(model.NewPosition(40.4169, -3.7035, 10, time.Now()))
	g.StartTour(model.NewPosition(40.4169, -3.7035, 10, time.Now()))
	sess.active, sess.id = true, "tour-1"

	resp2, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var st2 StatusResponse
	if err := json.NewDecoder(resp2.Body).Decode(&st2); err != nil {
		t.Fatal(err)
	}
	if !st2.Touring || st2.TourID != "tour-1" || st2.Position == nil || st2.Route == nil {
		t.Fatalf("incomplete status: %+v", st2)
	}
}

func TestLanguagePreference(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/language", map[string]string{"language": "ko"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set language: status %d", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/api/language")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var lang LanguageResponse
	if err := json.NewDecoder(resp2.Body).Decode(&lang); err != nil {
		t.Fatal(err)
	}
	if lang.Language != "en" || lang.Pending != "ko" {
		t.Fatalf("unexpected language state: %+v", lang)
	}
}

func TestHealthAndVersion(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/api/version")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var v map[string]string
	if err := json.NewDecoder(resp2.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	if v["version"] == "" {
		t.Fatal("missing version")
	}
}
