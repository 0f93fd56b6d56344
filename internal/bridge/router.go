package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mqtt-automations/internal/models"
	"github.com/desertthunder/mqtt-automations/internal/shared"
	"github.com/desertthunder/mqtt-automations/internal/tasks"
)

// Publisher sends a message to the bus.
type Publisher interface {
	Publish(topic, payload string) error
}

// Engine runs bus commands. It is implemented by tasks.Engine.
type Engine interface {
	AddCurrentTrack(ctx context.Context, payload string) (string, error)
	Control(ctx context.Context, command string) (string, error)
	PlayPreset(ctx context.Context, user string) (string, error)
	Populate(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.PopulateResult, error)
}

// RunRecorder stores the history of handled commands. It is implemented by
// repositories.RunRepository.
type RunRecorder interface {
	Start(ctx context.Context, run *models.Run) error
	Finish(ctx context.Context, run *models.Run) error
	SaveStats(ctx context.Context, stats *models.ReconcileStats) error
}

// Error contexts published ahead of the error message.
const (
	AddErrorContext          = "ERROR adding track to playlist(s)"
	ControlErrorContext      = "ERROR controlling Spotify player."
	KitchenErrorContext      = "ERROR starting playback"
	PostDownloadErrorContext = "ERROR processing downloaded tracks. Download playlist not populated."
	PopulateErrorContext     = "ERROR populating download playlist"
)

// handlerFunc runs a command and returns the result recorded for the run.
type handlerFunc func(ctx context.Context, run *models.Run, payload string) (string, error)

type route struct {
	handle   handlerFunc
	describe func(err error) string
}

// Router dispatches inbound messages to the engine, one goroutine per message.
type Router struct {
	engine    Engine
	publisher Publisher
	runs      RunRecorder
	routes    map[string]route
	logger    *log.Logger
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRouter creates a [Router]. runs may be nil, in which case no history is recorded.
func NewRouter(engine Engine, publisher Publisher, runs RunRecorder, logger *log.Logger) *Router {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	r := &Router{
		engine:    engine,
		publisher: publisher,
		runs:      runs,
		logger:    shared.WithLogger(logger, "component", "bridge"),
		now:       time.Now,
	}
	r.routes = map[string]route{
		TopicAdd:      {handle: r.handleAdd, describe: static(AddErrorContext)},
		TopicControl:  {handle: r.handleControl, describe: static(ControlErrorContext)},
		TopicKitchen:  {handle: r.handleKitchen, describe: static(KitchenErrorContext)},
		TopicPopulate: {handle: r.handlePopulate, describe: describePopulate},
	}
	return r
}

func static(desc string) func(error) string {
	return func(error) string { return desc }
}

func describePopulate(err error) string {
	if errors.Is(err, shared.ErrPostDownload) {
		return PostDownloadErrorContext
	}
	return PopulateErrorContext
}

// Topics returns the command topics the router handles, sorted.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for topic := range r.routes {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// Dispatch handles a message in a new goroutine. Messages on unknown topics are logged and dropped.
func (r *Router) Dispatch(ctx context.Context, topic, payload string) {
	rt, ok := r.routes[topic]
	if !ok {
		r.logger.Warn("ignoring message on unknown topic", "topic", topic)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("dropping message received after shutdown", "topic", topic)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.handle(ctx, topic, payload, rt)
	}()
}

// Wait blocks until every dispatched message has been handled.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Close stops dispatching new messages and waits for the ones in flight.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Router) handle(ctx context.Context, topic, payload string, rt route) {
	run := models.NewRun(topic, payload)
	logger := shared.WithLogger(r.logger, "topic", topic, "run", run.ID)
	logger.Info("handling command", "payload", payload)

	if r.runs != nil {
		if err := r.runs.Start(ctx, run); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}

	var (
		result string
		err    error
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
				logger.Error("recovered from panic", "panic", p)
			}
		}()
		result, err = rt.handle(ctx, run, payload)
	}()

	if err != nil {
		logger.Error("command failed", "error", err)
		r.publish(logger, ErrorTopic(topic), r.errorPayload(rt.describe(err), err))
	} else {
		logger.Info("command completed", "result", result)
	}

	if r.runs != nil {
		run.Finish(result, err)
		if err := r.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("failed to record run result", "error", err)
		}
	}
}

// errorPayload formats "{HH:MM}\n{context}\n{error}".
func (r *Router) errorPayload(desc string, err error) string {
	return fmt.Sprintf("%s\n%s\n%v", r.now().Format("15:04"), desc, err)
}

func (r *Router) publish(logger *log.Logger, topic, payload string) {
	if err := r.publisher.Publish(topic, payload); err != nil {
		logger.Error("failed to publish", "to", topic, "error", err)
	}
}

func (r *Router) handleAdd(ctx context.Context, run *models.Run, payload string) (string, error) {
	result, err := r.engine.AddCurrentTrack(ctx, payload)
	if err != nil {
		return "", err
	}
	r.publish(r.logger, TopicAddResult, result)
	return result, nil
}

func (r *Router) handleControl(ctx context.Context, run *models.Run, payload string) (string, error) {
	return r.engine.Control(ctx, payload)
}

func (r *Router) handleKitchen(ctx context.Context, run *models.Run, payload string) (string, error) {
	return r.engine.PlayPreset(ctx, payload)
}

func (r *Router) handlePopulate(ctx context.Context, run *models.Run, _ string) (string, error) {
	result, err := r.engine.Populate(ctx, nil)
	if err != nil {
		return "", err
	}

	summary := result.Summary()
	r.publish(r.logger, TopicPopulateSuccess, summary)
	if added := result.Reconcile.Added; added > 0 {
		r.publish(r.logger, TopicTracksToDownload, strconv.Itoa(added))
	}

	if r.runs != nil {
		if err := r.runs.SaveStats(ctx, statsFor(run.ID, result)); err != nil {
			r.logger.Warn("failed to record reconcile stats", "run", run.ID, "error", err)
		}
	}
	return summary, nil
}

func statsFor(runID string, result *tasks.PopulateResult) *models.ReconcileStats {
	return &models.ReconcileStats{
		RunID:      runID,
		Candidates: result.Reconcile.Candidates,
		Added:      result.Reconcile.Added,
		Aliased:    result.Reconcile.Aliased,
		Stamped:    result.Reconcile.Stamped,
		Unplayable: result.Reconcile.Unplayable,
		Processed:  result.Downloads.Processed,
		Downloaded: result.Downloads.Downloaded,
	}
}
