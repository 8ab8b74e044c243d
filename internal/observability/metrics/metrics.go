package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"vidmill/internal/models"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters for HTTP requests, account
// and session activity, video uploads, thumbnail generation, and earnings
// signals. A RWMutex coordinates concurrent writers.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	authEvents      map[string]uint64
	channelEvents   map[string]uint64
	videoUploads    map[string]uint64
	thumbnailEvents map[string]uint64
	earningsCount   map[string]uint64
	earningsTotal   map[string]models.Money
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers can
// immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		authEvents:      make(map[string]uint64),
		channelEvents:   make(map[string]uint64),
		videoUploads:    make(map[string]uint64),
		thumbnailEvents: make(map[string]uint64),
		earningsCount:   make(map[string]uint64),
		earningsTotal:   make(map[string]models.Money),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveAuthEvent records an authentication event such as "signup",
// "login_success", "login_failure", or "logout".
func (r *Recorder) ObserveAuthEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.authEvents[normalized]++
	r.mu.Unlock()
}

// ObserveChannelEvent records a channel lifecycle event such as
// "channel_created" or "channel_conflict".
func (r *Recorder) ObserveChannelEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.channelEvents[normalized]++
	r.mu.Unlock()
}

// ObserveVideoUpload records an accepted video upload keyed by category.
func (r *Recorder) ObserveVideoUpload(category string) {
	normalized := normalizeName(category)
	r.mu.Lock()
	r.videoUploads[normalized]++
	r.mu.Unlock()
}

// ObserveThumbnailEvent records a thumbnail pipeline outcome such as
// "generated", "upstream_failure", or "upload_failure".
func (r *Recorder) ObserveThumbnailEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.thumbnailEvents[normalized]++
	r.mu.Unlock()
}

// ObserveEarnings tracks earnings entries, capturing counts and total amounts
// by earnings source.
func (r *Recorder) ObserveEarnings(source string, amount models.Money) {
	normalized := normalizeName(source)
	r.mu.Lock()
	r.earningsCount[normalized]++
	total := r.earningsTotal[normalized]
	r.earningsTotal[normalized] = total.Add(amount)
	r.mu.Unlock()
}

// Reset clears all counters on the recorder. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.authEvents = make(map[string]uint64)
	r.channelEvents = make(map[string]uint64)
	r.videoUploads = make(map[string]uint64)
	r.thumbnailEvents = make(map[string]uint64)
	r.earningsCount = make(map[string]uint64)
	r.earningsTotal = make(map[string]models.Money)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting label
// sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	authEvents := sortedKeys(r.authEvents)
	channelEvents := sortedKeys(r.channelEvents)
	videoCategories := sortedKeys(r.videoUploads)
	thumbnailEvents := sortedKeys(r.thumbnailEvents)
	earningsSources := r.sortedEarningsSources()

	fmt.Fprintln(w, "# HELP vidmill_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE vidmill_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "vidmill_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP vidmill_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE vidmill_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "vidmill_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP vidmill_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE vidmill_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "vidmill_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP vidmill_auth_events_total Authentication events by type")
	fmt.Fprintln(w, "# TYPE vidmill_auth_events_total counter")
	for _, event := range authEvents {
		fmt.Fprintf(w, "vidmill_auth_events_total{event=\"%s\"} %d\n", event, r.authEvents[event])
	}

	fmt.Fprintln(w, "# HELP vidmill_channel_events_total Channel lifecycle events by type")
	fmt.Fprintln(w, "# TYPE vidmill_channel_events_total counter")
	for _, event := range channelEvents {
		fmt.Fprintf(w, "vidmill_channel_events_total{event=\"%s\"} %d\n", event, r.channelEvents[event])
	}

	fmt.Fprintln(w, "# HELP vidmill_video_uploads_total Accepted video uploads by category")
	fmt.Fprintln(w, "# TYPE vidmill_video_uploads_total counter")
	for _, category := range videoCategories {
		fmt.Fprintf(w, "vidmill_video_uploads_total{category=\"%s\"} %d\n", category, r.videoUploads[category])
	}

	fmt.Fprintln(w, "# HELP vidmill_thumbnail_events_total Thumbnail generation outcomes by type")
	fmt.Fprintln(w, "# TYPE vidmill_thumbnail_events_total counter")
	for _, event := range thumbnailEvents {
		fmt.Fprintf(w, "vidmill_thumbnail_events_total{event=\"%s\"} %d\n", event, r.thumbnailEvents[event])
	}

	fmt.Fprintln(w, "# HELP vidmill_earnings_events_total Earnings entries recorded by source")
	fmt.Fprintln(w, "# TYPE vidmill_earnings_events_total counter")
	for _, source := range earningsSources {
		fmt.Fprintf(w, "vidmill_earnings_events_total{source=\"%s\"} %d\n", source, r.earningsCount[source])
	}

	fmt.Fprintln(w, "# HELP vidmill_earnings_amount_sum Total earnings amount by source")
	fmt.Fprintln(w, "# TYPE vidmill_earnings_amount_sum counter")
	for _, source := range earningsSources {
		total := r.earningsTotal[source]
		fmt.Fprintf(w, "vidmill_earnings_amount_sum{source=\"%s\"} %s\n", source, total.DecimalString())
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedEarningsSources() []string {
	seen := make(map[string]struct{}, len(r.earningsCount)+len(r.earningsTotal))
	for source := range r.earningsCount {
		seen[source] = struct{}{}
	}
	for source := range r.earningsTotal {
		seen[source] = struct{}{}
	}
	sources := make([]string, 0, len(seen))
	for source := range seen {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

func sortedKeys(counters map[string]uint64) []string {
	keys := make([]string, 0, len(counters))
	for key := range counters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	if digitCount == 0 {
		return false
	}
	return digitCount >= 4 || len(segment) >= 16
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveAuthEvent records an authentication event on the default recorder.
func ObserveAuthEvent(event string) {
	defaultRecorder.ObserveAuthEvent(event)
}

// ObserveChannelEvent records a channel event on the default recorder.
func ObserveChannelEvent(event string) {
	defaultRecorder.ObserveChannelEvent(event)
}

// ObserveVideoUpload records an accepted upload on the default recorder.
func ObserveVideoUpload(category string) {
	defaultRecorder.ObserveVideoUpload(category)
}

// ObserveThumbnailEvent records a thumbnail outcome on the default recorder.
func ObserveThumbnailEvent(event string) {
	defaultRecorder.ObserveThumbnailEvent(event)
}

// ObserveEarnings records an earnings entry on the default recorder.
func ObserveEarnings(source string, amount models.Money) {
	defaultRecorder.ObserveEarnings(source, amount)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
