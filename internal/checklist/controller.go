package checklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"fieldbook/api/internal/store"
)

// SaveState tracks the one in-flight network operation a controller allows.
type SaveState string

const (
	SaveIdle    SaveState = "idle"
	SaveSaving  SaveState = "saving"
	SaveSuccess SaveState = "success"
	SaveError   SaveState = "error"
)

var (
	ErrFinalized      = errors.New("checklist is finalized")
	ErrSaveInFlight   = errors.New("a save is already in flight")
	ErrFieldsRequired = errors.New("field selection is required before answering")
	ErrUnknownItem    = errors.New("unknown item key")
)

// ResponseStore is the slice of the checklist store the controller writes to.
type ResponseStore interface {
	UpsertResponse(ctx context.Context, rec store.ResponseRecord) error
	ReplaceResponses(ctx context.Context, checklistID string, records []store.ResponseRecord) error
	FinalizeChecklist(ctx context.Context, checklistID string) error
}

// DraftCache receives the synchronous write-through after every mutation of
// the canonical map, before any network call is issued.
type DraftCache interface {
	Save(ctx context.Context, publicID string, m ResponseMap) error
	Clear(ctx context.Context, publicID string) error
}

// Update is the producer-writable slice of a response. Nil pointers mean
// "leave as is"; the merge is shallow.
type Update struct {
	Answer           any               `json:"answer,omitempty"`
	Quantity         *float64          `json:"quantity,omitempty"`
	ObservationValue *string           `json:"observationValue,omitempty"`
	FileURL          *string           `json:"fileUrl,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Controller owns the canonical response map of one open checklist. It is
// the single write path: every mutation lands here, write-throughs to the
// draft cache, and only then may touch the network. All methods are atomic
// from the caller's perspective.
type Controller struct {
	mu sync.Mutex

	checklist  store.Checklist
	sections   []store.Section
	fieldNames map[string]string

	responses ResponseMap
	selection FieldSelection
	items     []MaterializedItem

	step      int
	saveState SaveState
	saving    bool

	store ResponseStore
	cache DraftCache
}

func NewController(cl store.Checklist, tpl store.Template, fields []store.Field, responses ResponseMap, responseStore ResponseStore, cache DraftCache) *Controller {
	fieldNames := make(map[string]string, len(fields))
	for _, f := range fields {
		fieldNames[f.ID] = f.Name
	}
	if responses == nil {
		responses = ResponseMap{}
	}

	c := &Controller{
		checklist:  cl,
		sections:   tpl.Sections,
		fieldNames: fieldNames,
		responses:  responses,
		saveState:  SaveIdle,
		store:      responseStore,
		cache:      cache,
	}
	c.rebuild()
	return c
}

// rebuild recomputes the field selection and the materialized sequence from
// the current canonical map. Caller holds the lock (or is the constructor).
func (c *Controller) rebuild() {
	c.selection = ResolveFields(c.responses, c.sections)
	if c.selection.SelectionRequired {
		c.items = nil
	} else {
		c.items = Materialize(c.sections, c.fieldNames, c.selection.FieldIDs, c.isChild(), ResponseItemIDs(c.responses))
	}
	if c.step >= len(c.items) {
		c.step = 0
	}
}

func (c *Controller) isChild() bool {
	return c.checklist.ParentID != nil
}

func (c *Controller) finalized() bool {
	return c.checklist.Status == "FINALIZED"
}

// Items returns the flat materialized sequence (nil while field selection is
// still required).
func (c *Controller) Items() []MaterializedItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MaterializedItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Controller) Responses() ResponseMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responses.Clone()
}

func (c *Controller) Selection() FieldSelection {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.selection.FieldIDs))
	copy(ids, c.selection.FieldIDs)
	return FieldSelection{FieldIDs: ids, SelectionRequired: c.selection.SelectionRequired}
}

func (c *Controller) Checklist() store.Checklist {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checklist
}

func (c *Controller) SaveState() SaveState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveState
}

func (c *Controller) Step() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// PercentComplete is (currentStep+1)/len*100, or zero with no sequence.
func (c *Controller) PercentComplete() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return 0
	}
	return float64(c.step+1) / float64(len(c.items)) * 100
}

// Next advances the current step. No-op at the end of the sequence or while
// a save is in flight.
func (c *Controller) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving || c.step >= len(c.items)-1 {
		return c.step
	}
	c.step++
	return c.step
}

func (c *Controller) Previous() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving || c.step <= 0 {
		return c.step
	}
	c.step--
	return c.step
}

// Validate applies required-field validation: required items fail when the
// answer is absent or an empty array, non-required items always pass.
func Validate(item MaterializedItem, m ResponseMap) bool {
	if !item.Required {
		return true
	}
	return m[item.ID].HasAnswer()
}

// ConfirmFields records the chosen field set, persists it through the draft
// cache, and materializes the sequence. Idempotent; an empty set is a
// validation error.
func (c *Controller) ConfirmFields(ctx context.Context, fieldIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized() {
		return ErrFinalized
	}
	if err := ConfirmFieldSelection(c.responses, fieldIDs); err != nil {
		return err
	}
	c.writeThrough(ctx)
	c.rebuild()
	return nil
}

// UpdateAnswer shallow-merges a producer edit into the canonical response.
// Writes against an APPROVED response are silently dropped. A REJECTED
// response re-enters PENDING_VERIFICATION. Updates carrying composition/unit
// metadata propagate to matching siblings in the same section instance.
func (c *Controller) UpdateAnswer(ctx context.Context, key string, update Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized() {
		return ErrFinalized
	}
	if c.selection.SelectionRequired {
		return ErrFieldsRequired
	}

	source, ok := c.findItem(key)
	if !ok {
		return ErrUnknownItem
	}

	current := c.responses[key]
	if current.Status == StatusApproved {
		return nil
	}

	merged := current
	itemID, fieldID := SplitKey(key)
	merged.ItemID = itemID
	merged.FieldID = fieldID
	if update.Answer != nil {
		merged.Answer = update.Answer
	}
	if update.Quantity != nil {
		merged.Quantity = update.Quantity
	}
	if update.ObservationValue != nil {
		merged.ObservationValue = *update.ObservationValue
	}
	if update.FileURL != nil {
		merged.FileURL = *update.FileURL
	}
	if update.Metadata != nil {
		merged.Metadata = update.Metadata
	}
	merged.Status = StatusPending
	merged.RejectionReason = ""
	c.responses[key] = merged

	for _, p := range propagations(c.items, source, update.Metadata) {
		sibling := c.responses[p.target.ID]
		siblingItemID, siblingFieldID := SplitKey(p.target.ID)
		sibling.ItemID = siblingItemID
		sibling.FieldID = siblingFieldID
		sibling.Answer = p.answer
		sibling.Status = StatusPending
		sibling.RejectionReason = ""
		c.responses[p.target.ID] = sibling
	}

	c.writeThrough(ctx)
	return nil
}

// ManualSave flushes the canonical map to the store. A second save while one
// is in flight is dropped, not queued. On failure the save indicator flips
// to error and the draft cache is left intact so nothing is lost.
func (c *Controller) ManualSave(ctx context.Context) error {
	c.mu.Lock()
	if c.finalized() {
		c.mu.Unlock()
		return ErrFinalized
	}
	if c.saving {
		c.mu.Unlock()
		return ErrSaveInFlight
	}
	c.saving = true
	c.saveState = SaveSaving
	c.writeThrough(ctx)
	records := c.records()
	checklistID := c.checklist.ID
	c.mu.Unlock()

	err := c.store.ReplaceResponses(ctx, checklistID, records)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving = false
	if err != nil {
		c.saveState = SaveError
		return fmt.Errorf("manual save: %w", err)
	}
	c.saveState = SaveSuccess
	return nil
}

// BeginUpload claims the controller's single in-flight network slot for a
// file upload. Saves, submits and navigation are rejected until EndUpload; a
// concurrent attempt is dropped, not queued.
func (c *Controller) BeginUpload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized() {
		return ErrFinalized
	}
	if c.saving {
		return ErrSaveInFlight
	}
	c.saving = true
	c.saveState = SaveSaving
	return nil
}

// EndUpload releases the slot claimed by BeginUpload.
func (c *Controller) EndUpload(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving = false
	if err != nil {
		c.saveState = SaveError
	} else {
		c.saveState = SaveIdle
	}
}

// Submit validates the whole sequence in order. The first failing item
// aborts with its index and nothing is written; on success the map is
// bulk-written and the draft cache cleared.
func (c *Controller) Submit(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.finalized() {
		c.mu.Unlock()
		return -1, ErrFinalized
	}
	if c.saving {
		c.mu.Unlock()
		return -1, ErrSaveInFlight
	}
	if c.selection.SelectionRequired {
		c.mu.Unlock()
		return -1, ErrFieldsRequired
	}

	for i, item := range c.items {
		if !Validate(item, c.responses) {
			c.step = i
			c.mu.Unlock()
			return i, nil
		}
	}

	c.saving = true
	c.saveState = SaveSaving
	c.writeThrough(ctx)
	records := c.records()
	checklistID := c.checklist.ID
	publicID := c.checklist.PublicID
	c.mu.Unlock()

	err := c.store.ReplaceResponses(ctx, checklistID, records)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving = false
	if err != nil {
		c.saveState = SaveError
		return -1, fmt.Errorf("submit: %w", err)
	}
	c.saveState = SaveSuccess
	if c.checklist.Status == "SENT" {
		c.checklist.Status = "IN_PROGRESS"
	}
	if err := c.cache.Clear(ctx, publicID); err != nil {
		logrus.WithField("checklist", publicID).Warnf("clear draft after submit: %v", err)
	}
	return -1, nil
}

// Approve, Reject, Revalidate, AcceptSuggestion and InternalFill are the
// audit actions. Each follows snapshot -> apply -> persist -> commit-or-
// rollback; a failed persistence call restores the map exactly to its
// pre-mutation snapshot.

func (c *Controller) Approve(ctx context.Context, key string) error {
	return c.auditMutation(ctx, key, func(r *Response) {
		r.Status = StatusApproved
		r.RejectionReason = ""
	})
}

func (c *Controller) Reject(ctx context.Context, key, reason string) error {
	return c.auditMutation(ctx, key, func(r *Response) {
		r.Status = StatusRejected
		r.RejectionReason = reason
	})
}

// Revalidate is the only path out of APPROVED: the auditor sends the
// response back to verification.
func (c *Controller) Revalidate(ctx context.Context, key string) error {
	return c.auditMutation(ctx, key, func(r *Response) {
		r.Status = StatusPending
		r.RejectionReason = ""
	})
}

func (c *Controller) AcceptSuggestion(ctx context.Context, key string) error {
	return c.auditMutation(ctx, key, func(r *Response) {
		r.Status = StatusApproved
		r.RejectionReason = ""
	})
}

// InternalFill lets the auditor answer on the producer's behalf. The entry
// is marked internal and still goes through verification.
func (c *Controller) InternalFill(ctx context.Context, key string, update Update) error {
	return c.auditMutation(ctx, key, func(r *Response) {
		if update.Answer != nil {
			r.Answer = update.Answer
		}
		if update.Quantity != nil {
			r.Quantity = update.Quantity
		}
		if update.ObservationValue != nil {
			r.ObservationValue = *update.ObservationValue
		}
		if update.FileURL != nil {
			r.FileURL = *update.FileURL
		}
		r.IsInternal = true
		r.Status = StatusPending
		r.RejectionReason = ""
	})
}

func (c *Controller) auditMutation(ctx context.Context, key string, apply func(*Response)) error {
	c.mu.Lock()
	if c.finalized() {
		c.mu.Unlock()
		return ErrFinalized
	}
	// The reserved selection entry is written only by confirmation and is
	// never audited.
	if _, ok := c.findItem(key); !ok {
		c.mu.Unlock()
		return ErrUnknownItem
	}

	tx := begin(c.responses)

	resp := c.responses[key]
	itemID, fieldID := SplitKey(key)
	resp.ItemID = itemID
	resp.FieldID = fieldID
	apply(&resp)
	c.responses[key] = resp

	c.writeThrough(ctx)
	rec := c.record(key, resp)
	c.mu.Unlock()

	err := c.store.UpsertResponse(ctx, rec)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.responses = tx.rollback()
		c.writeThrough(ctx)
		return fmt.Errorf("persist audit action: %w", err)
	}
	return nil
}

// Refresh replaces the canonical map after a background reload from the
// store and rematerializes the sequence.
func (c *Controller) Refresh(server []store.ResponseRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = Reconcile(c.responses, server)
	c.rebuild()
}

// Finalize closes the checklist for good. All later mutations are rejected
// locally before any network call.
func (c *Controller) Finalize(ctx context.Context) error {
	c.mu.Lock()
	if c.finalized() {
		c.mu.Unlock()
		return ErrFinalized
	}
	checklistID := c.checklist.ID
	c.mu.Unlock()

	if err := c.store.FinalizeChecklist(ctx, checklistID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checklist.Status = "FINALIZED"
	return nil
}

func (c *Controller) findItem(key string) (MaterializedItem, bool) {
	for _, item := range c.items {
		if item.ID == key {
			return item, true
		}
	}
	return MaterializedItem{}, false
}

// writeThrough persists the canonical map to the draft cache. It runs before
// any network call so a reload during an in-flight request never loses the
// pending edit. Cache trouble is recoverable local failure: logged, not
// surfaced.
func (c *Controller) writeThrough(ctx context.Context) {
	if err := c.cache.Save(ctx, c.checklist.PublicID, c.responses); err != nil {
		logrus.WithField("checklist", c.checklist.PublicID).Warnf("draft write-through: %v", err)
	}
}

func (c *Controller) record(key string, resp Response) store.ResponseRecord {
	itemID, fieldID := SplitKey(key)
	answer, _ := json.Marshal(resp.Answer)
	if resp.Answer == nil {
		answer = nil
	}
	var metadata []byte
	if len(resp.Metadata) > 0 {
		metadata, _ = json.Marshal(resp.Metadata)
	}
	return store.ResponseRecord{
		ChecklistID:      c.checklist.ID,
		ItemID:           itemID,
		FieldID:          fieldID,
		Answer:           answer,
		Quantity:         resp.Quantity,
		ObservationValue: resp.ObservationValue,
		FileURL:          resp.FileURL,
		Status:           string(resp.Status),
		RejectionReason:  resp.RejectionReason,
		IsInternal:       resp.IsInternal,
		Metadata:         metadata,
	}
}

// records serializes the canonical map for a bulk write, in sorted key order
// so identical maps produce identical write sets.
func (c *Controller) records() []store.ResponseRecord {
	keys := make([]string, 0, len(c.responses))
	for k := range c.responses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]store.ResponseRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.record(k, c.responses[k]))
	}
	return out
}
