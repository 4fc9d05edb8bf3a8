package camsyncdal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamesrr39/camsync-app/camsync"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
)

type UploadMode string

const (
	UploadModeProduction UploadMode = "production"
	UploadModeSandbox    UploadMode = "sandbox"
	UploadModeSimulate   UploadMode = "simulate"
)

var uploadModes = []UploadMode{UploadModeProduction, UploadModeSandbox, UploadModeSimulate}

func (m UploadMode) IsValid() bool {
	for _, mode := range uploadModes {
		if m == mode {
			return true
		}
	}
	return false
}

type QueuedEditState int

const (
	QueuedEditStatePending    QueuedEditState = 1
	QueuedEditStateSubmitting QueuedEditState = 2
	QueuedEditStateError      QueuedEditState = 3
	QueuedEditStateCompleting QueuedEditState = 4
)

var queuedEditStateNames = []string{
	"",
	"Pending",
	"Submitting",
	"Error",
	"Completing",
}

func (s QueuedEditState) String() string {
	if s < 0 || int(s) >= len(queuedEditStateNames) {
		return "Unknown"
	}
	return queuedEditStateNames[s]
}

// QueuedEdit is a locally created camera waiting to be committed to the remote database
type QueuedEdit struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Direction float64 `json:"direction"`
	// Profile is a snapshot of the profile the edit was made with
	Profile  camsync.AttributeProfile `json:"profile"`
	Mode     UploadMode               `json:"mode"`
	State    QueuedEditState          `json:"state"`
	Attempts int                      `json:"attempts"`
	// LastError is the message of the most recent failed attempt
	LastError string `json:"lastError,omitempty"`
	// RemoteNodeID is set once the destination accepted the edit
	RemoteNodeID int64     `json:"remoteNodeId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewEdit holds the user supplied fields of a QueuedEdit
type NewEdit struct {
	Lat       float64                  `json:"lat"`
	Lon       float64                  `json:"lon"`
	Direction float64                  `json:"direction"`
	Profile   camsync.AttributeProfile `json:"profile"`
	Mode      UploadMode               `json:"mode"`
}

// QueueStore persists the full list of queued edits
type QueueStore interface {
	Save(items []*QueuedEdit) errorsx.Error
	Load() ([]*QueuedEdit, errorsx.Error)
}

// Submitter sends an edit to its destination.
// remoteNodeID is 0 if the destination does not assign one (e.g. simulated submissions).
type Submitter interface {
	Submit(ctx context.Context, edit QueuedEdit, accessToken string) (remoteNodeID int64, err errorsx.Error)
}

type DrainResult int

const (
	DrainResultIdle DrainResult = iota
	DrainResultOffline
	DrainResultBusy
	DrainResultCoolingDown
	DrainResultAuthMissing
	DrainResultSubmitted
	DrainResultFailed
	DrainResultTerminalFailure
	DrainResultDiscarded
)

var drainResultNames = []string{
	"Idle",
	"Offline",
	"Busy",
	"Cooling Down",
	"Auth Missing",
	"Submitted",
	"Failed",
	"Terminal Failure",
	"Discarded",
}

func (r DrainResult) String() string {
	return drainResultNames[r]
}

type UploadQueueConfig struct {
	MaxAttempts     int
	FailureCooldown time.Duration
	DrainInterval   time.Duration
}

// UploadQueue is the persistent, strictly FIFO queue of edits awaiting submission.
// All state changes are persisted through the QueueStore straight away.
type UploadQueue struct {
	logger    *logpkg.Logger
	store     QueueStore
	submitter Submitter
	auth      AuthProvider
	config    UploadQueueConfig
	nowFunc   func() time.Time

	mu            sync.Mutex
	items         []*QueuedEdit
	offline       bool
	armed         bool
	draining      bool
	cooldownUntil time.Time

	loopMu   sync.Mutex
	cancel   context.CancelFunc
	stopDone chan struct{}
}

// NewUploadQueue loads the persisted queue. Items that were mid-submission when the process stopped go back to Pending.
func NewUploadQueue(logger *logpkg.Logger, store QueueStore, submitter Submitter, auth AuthProvider, config UploadQueueConfig) (*UploadQueue, errorsx.Error) {
	items, err := store.Load()
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	for _, item := range items {
		if item.State == QueuedEditStateSubmitting {
			item.State = QueuedEditStatePending
		}
	}

	q := &UploadQueue{
		logger:    logger,
		store:     store,
		submitter: submitter,
		auth:      auth,
		config:    config,
		nowFunc:   time.Now,
		items:     items,
	}
	q.armed = q.hasDrainableItemLocked()

	logger.Info("loaded upload queue with %d item(s)", len(items))

	return q, nil
}

// Add queues a new edit and re-arms the drainer
func (q *UploadQueue) Add(newEdit NewEdit) (QueuedEdit, errorsx.Error) {
	if !newEdit.Mode.IsValid() {
		return QueuedEdit{}, errorsx.Errorf("invalid upload mode %q", newEdit.Mode)
	}

	item := &QueuedEdit{
		ID:        uuid.New().String(),
		Lat:       newEdit.Lat,
		Lon:       newEdit.Lon,
		Direction: newEdit.Direction,
		Profile:   newEdit.Profile,
		Mode:      newEdit.Mode,
		State:     QueuedEditStatePending,
		CreatedAt: q.nowFunc(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	wasArmed := q.armed
	q.items = append(q.items, item)
	q.armed = true

	err := q.persistLocked()
	if err != nil {
		q.items = q.items[:len(q.items)-1]
		q.armed = wasArmed
		return QueuedEdit{}, err
	}

	return *item, nil
}

// Retry moves an item in the Error state back to Pending with its attempts reset, and re-arms the drainer
func (q *UploadQueue) Retry(id string) errorsx.Error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.findLocked(id)
	if item == nil {
		return errorsx.Wrap(ErrItemNotFound, "id", id)
	}

	if item.State != QueuedEditStateError {
		return errorsx.Wrap(ErrItemNotInErrorState, "id", id, "state", item.State.String())
	}

	previous := *item
	wasArmed, previousCooldown := q.armed, q.cooldownUntil

	item.State = QueuedEditStatePending
	item.Attempts = 0
	item.LastError = ""
	q.armed = true
	q.cooldownUntil = time.Time{}

	err := q.persistLocked()
	if err != nil {
		*item = previous
		q.armed = wasArmed
		q.cooldownUntil = previousCooldown
		return err
	}

	return nil
}

// Delete discards an item in any state.
// If it is being submitted, the submission's result is ignored when it arrives.
func (q *UploadQueue) Delete(id string) errorsx.Error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.ID == id {
			previous := q.items
			q.items = make([]*QueuedEdit, 0, len(previous)-1)
			q.items = append(q.items, previous[:i]...)
			q.items = append(q.items, previous[i+1:]...)

			err := q.persistLocked()
			if err != nil {
				q.items = previous
				return err
			}
			return nil
		}
	}

	return errorsx.Wrap(ErrItemNotFound, "id", id)
}

// Items returns a snapshot of the queue in insertion order
func (q *UploadQueue) Items() []QueuedEdit {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]QueuedEdit, len(q.items))
	for i, item := range q.items {
		items[i] = *item
	}
	return items
}

// SetOffline toggles the manual offline switch. Going back online re-arms the drainer.
func (q *UploadQueue) SetOffline(offline bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.offline && !offline {
		q.armed = true
	}
	q.offline = offline
}

func (q *UploadQueue) IsOffline() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.offline
}

// IsArmed reports whether the drainer timer is running
func (q *UploadQueue) IsArmed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.armed
}

// ConfirmPresent drops Completing items whose remote node id is among nodeIDs:
// the remote database has caught up with them.
func (q *UploadQueue) ConfirmPresent(nodeIDs []int64) {
	present := make(map[int64]bool, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		present[nodeID] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var kept []*QueuedEdit
	for _, item := range q.items {
		if item.State == QueuedEditStateCompleting && present[item.RemoteNodeID] {
			q.logger.Info("queued edit %s confirmed present as node %d", item.ID, item.RemoteNodeID)
			continue
		}
		kept = append(kept, item)
	}

	if len(kept) == len(q.items) {
		return
	}

	q.items = kept
	err := q.persistLocked()
	if err != nil {
		q.logger.Error("couldn't persist upload queue after confirming edits: %s", err.Error())
	}
}

// DrainOnce makes at most one submission attempt, for the first Pending item
func (q *UploadQueue) DrainOnce(ctx context.Context) DrainResult {
	q.mu.Lock()

	switch {
	case q.draining:
		q.mu.Unlock()
		return DrainResultBusy
	case q.offline:
		q.mu.Unlock()
		return DrainResultOffline
	case q.nowFunc().Before(q.cooldownUntil):
		q.mu.Unlock()
		return DrainResultCoolingDown
	}

	item := q.nextPendingLocked()
	if item == nil {
		q.armed = false
		q.mu.Unlock()
		return DrainResultIdle
	}

	accessToken, ok := q.auth.GetAccessToken()
	if !ok || !q.auth.IsLoggedIn() {
		q.mu.Unlock()
		q.logger.Debug("not logged in, skipping upload of %s", item.ID)
		return DrainResultAuthMissing
	}

	item.State = QueuedEditStateSubmitting
	q.draining = true
	edit := *item
	q.mu.Unlock()

	q.logger.Debug("submitting queued edit %s to %s (attempt %d)", edit.ID, edit.Mode, edit.Attempts+1)
	// an edit already on the wire runs to completion so its result is recorded, even when the drainer is stopping
	remoteNodeID, submitErr := q.submitter.Submit(context.WithoutCancel(ctx), edit, accessToken)

	q.mu.Lock()
	defer q.mu.Unlock()

	q.draining = false

	item = q.findLocked(edit.ID)
	if item == nil {
		q.logger.Info("queued edit %s was deleted during submission, discarding the result", edit.ID)
		return DrainResultDiscarded
	}

	result := q.applyResultLocked(item, remoteNodeID, submitErr)

	err := q.persistLocked()
	if err != nil {
		q.logger.Error("couldn't persist upload queue: %s", err.Error())
	}

	return result
}

func (q *UploadQueue) applyResultLocked(item *QueuedEdit, remoteNodeID int64, submitErr errorsx.Error) DrainResult {
	if submitErr == nil {
		q.armed = true
		if remoteNodeID == 0 {
			q.removeLocked(item.ID)
			q.logger.Info("queued edit %s submitted", item.ID)
			return DrainResultSubmitted
		}

		item.State = QueuedEditStateCompleting
		item.RemoteNodeID = remoteNodeID
		q.logger.Info("queued edit %s submitted as node %d, waiting for it to show up in queries", item.ID, remoteNodeID)
		return DrainResultSubmitted
	}

	item.Attempts++
	item.LastError = submitErr.Error()

	if item.Attempts >= q.config.MaxAttempts {
		item.State = QueuedEditStateError
		q.armed = false
		q.logger.Warn("queued edit %s failed %d time(s), giving up until retried: %s", item.ID, item.Attempts, item.LastError)
		return DrainResultTerminalFailure
	}

	item.State = QueuedEditStatePending
	q.cooldownUntil = q.nowFunc().Add(q.config.FailureCooldown)
	q.logger.Warn("queued edit %s failed (attempt %d/%d), cooling down for %s: %s", item.ID, item.Attempts, q.config.MaxAttempts, q.config.FailureCooldown, item.LastError)
	return DrainResultFailed
}

// Start runs the drainer on a fixed interval until Stop is called or ctx is done
func (q *UploadQueue) Start(ctx context.Context) {
	q.loopMu.Lock()
	defer q.loopMu.Unlock()

	if q.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.stopDone = make(chan struct{})

	go q.run(loopCtx, q.stopDone)
}

// Stop halts the drainer, waiting for an in-progress submission to finish and its result to be applied
func (q *UploadQueue) Stop() {
	q.loopMu.Lock()
	defer q.loopMu.Unlock()

	if q.cancel == nil {
		return
	}

	q.cancel()
	<-q.stopDone

	q.cancel = nil
	q.stopDone = nil
}

func (q *UploadQueue) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !q.shouldDrain() {
				continue
			}

			result := q.DrainOnce(ctx)
			q.logger.Debug("upload queue drain: %s", result)
		}
	}
}

func (q *UploadQueue) shouldDrain() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.armed && !q.offline && q.hasDrainableItemLocked()
}

func (q *UploadQueue) hasDrainableItemLocked() bool {
	return q.nextPendingLocked() != nil
}

// nextPendingLocked returns the oldest Pending item. Error items wait for the user; Completing items for the query service.
func (q *UploadQueue) nextPendingLocked() *QueuedEdit {
	for _, item := range q.items {
		if item.State == QueuedEditStatePending {
			return item
		}
	}
	return nil
}

func (q *UploadQueue) findLocked(id string) *QueuedEdit {
	for _, item := range q.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (q *UploadQueue) removeLocked(id string) {
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

func (q *UploadQueue) persistLocked() errorsx.Error {
	err := q.store.Save(q.items)
	if err != nil {
		return errorsx.Wrap(err)
	}
	return nil
}
