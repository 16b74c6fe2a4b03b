package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"fieldbook/api/internal/checklist"
	"fieldbook/api/internal/config"
	"fieldbook/api/internal/export"
	"fieldbook/api/internal/screening"
	"fieldbook/api/internal/search"
	"fieldbook/api/internal/store"
)

type dataStore interface {
	GetChecklistByPublicID(context.Context, string) (store.Checklist, error)
	ListChecklists(ctx context.Context, producerID, status string) ([]store.Checklist, error)
	GetTemplate(context.Context, string) (store.Template, error)
	ListFields(context.Context, string) ([]store.Field, error)
	ListResponses(context.Context, string) ([]store.ResponseRecord, error)
	GetProducer(context.Context, string) (store.Producer, error)
	UpsertResponse(context.Context, store.ResponseRecord) error
	ReplaceResponses(context.Context, string, []store.ResponseRecord) error
	FinalizeChecklist(context.Context, string) error
	Ping(ctx context.Context) error
}

type draftCache interface {
	Load(ctx context.Context, publicID string) (checklist.ResponseMap, error)
	Save(ctx context.Context, publicID string, m checklist.ResponseMap) error
	Clear(ctx context.Context, publicID string) error
}

type uploader interface {
	Store(ctx context.Context, checklistPublicID, filename, contentType string, size int64, body io.Reader) (string, error)
	Remove(ctx context.Context, objectURL string) error
}

// openChecklist pairs a lifecycle controller with the display names the
// presentation layer needs alongside it.
type openChecklist struct {
	controller   *checklist.Controller
	templateName string
	producerName string
}

type Service struct {
	cfg       config.Config
	store     dataStore
	cache     draftCache
	screening *screening.Service
	uploads   uploader
	search    *search.Service

	mu   sync.Mutex
	open map[string]*openChecklist
}

func New(cfg config.Config, dataStore dataStore, cache draftCache, screeningSvc *screening.Service, uploadSvc uploader, searchSvc *search.Service) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		cache:     cache,
		screening: screeningSvc,
		uploads:   uploadSvc,
		search:    searchSvc,
		open:      make(map[string]*openChecklist),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// session returns the open controller for a checklist, loading and
// reconciling it on first access. The controller is the single writer of the
// canonical map; everything else goes through it.
func (s *Service) session(ctx context.Context, publicID string) (*openChecklist, error) {
	s.mu.Lock()
	if oc, ok := s.open[publicID]; ok {
		s.mu.Unlock()
		return oc, nil
	}
	s.mu.Unlock()

	cl, err := s.store.GetChecklistByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Checklist not found", nil)
		}
		return nil, err
	}

	tpl, err := s.store.GetTemplate(ctx, cl.TemplateID)
	if err != nil {
		return nil, err
	}

	fields, err := s.store.ListFields(ctx, cl.ProducerID)
	if err != nil {
		return nil, err
	}

	server, err := s.store.ListResponses(ctx, cl.ID)
	if err != nil {
		return nil, err
	}

	draft, err := s.cache.Load(ctx, publicID)
	if err != nil {
		// Losing the draft is recoverable; losing the checklist is not.
		logrus.WithField("checklist", publicID).Warnf("draft load failed, starting from server state: %v", err)
		draft = checklist.ResponseMap{}
	}

	producerName := cl.ProducerID
	if producer, err := s.store.GetProducer(ctx, cl.ProducerID); err == nil {
		producerName = producer.Name
	}

	canonical := checklist.Reconcile(draft, server)
	controller := checklist.NewController(cl, tpl, fields, canonical, s.store, s.cache)

	oc := &openChecklist{
		controller:   controller,
		templateName: tpl.Name,
		producerName: producerName,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.open[publicID]; ok {
		return existing, nil
	}
	s.open[publicID] = oc

	if s.search != nil {
		s.search.IndexChecklist(search.ChecklistRecord{
			ID:           cl.ID,
			PublicID:     cl.PublicID,
			TemplateName: tpl.Name,
			ProducerID:   cl.ProducerID,
			ProducerName: producerName,
			Status:       cl.Status,
		})
		s.search.IndexTemplate(search.TemplateRecord{
			ID:      tpl.ID,
			Name:    tpl.Name,
			Version: tpl.Version,
		})
	}
	return oc, nil
}

func (s *Service) ListChecklists(ctx context.Context, producerID, status string) ([]store.Checklist, error) {
	if status != "" && !store.ValidChecklistStatus(status) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown checklist status", map[string]any{"status": status})
	}
	return s.store.ListChecklists(ctx, producerID, status)
}

func (s *Service) OpenChecklist(ctx context.Context, publicID string) (ChecklistView, error) {
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return ChecklistView{}, err
	}
	fields, err := s.store.ListFields(ctx, oc.controller.Checklist().ProducerID)
	if err != nil {
		return ChecklistView{}, err
	}
	return buildView(oc, fields), nil
}

func (s *Service) ConfirmFieldSelection(ctx context.Context, publicID string, fieldIDs []string) (ChecklistView, error) {
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return ChecklistView{}, err
	}
	if err := oc.controller.ConfirmFields(ctx, fieldIDs); err != nil {
		return ChecklistView{}, s.translate(err)
	}
	fields, err := s.store.ListFields(ctx, oc.controller.Checklist().ProducerID)
	if err != nil {
		return ChecklistView{}, err
	}
	return buildView(oc, fields), nil
}

// UpdateAnswer applies a producer edit. When the update carries a file URL
// and screening is enabled, a blocking verdict rejects the save; warn-mode
// verdicts ride along in the result as advisories.
func (s *Service) UpdateAnswer(ctx context.Context, publicID, key string, update checklist.Update, itemName, itemType string) (screening.Verdict, error) {
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return screening.Verdict{}, err
	}

	var verdict screening.Verdict
	if update.FileURL != nil && *update.FileURL != "" && s.screening != nil {
		verdict = s.screening.ScreenFile(ctx, *update.FileURL, itemName, itemType)
		if verdict.Blocks() {
			return verdict, domainError(http.StatusUnprocessableEntity, "SCREENING_BLOCKED", verdict.Message, verdict)
		}
	}

	itemID, fieldID := checklist.SplitKey(key)
	canonical := checklist.CanonicalKey(itemID, fieldID)
	previousURL := oc.controller.Responses()[canonical].FileURL

	if err := oc.controller.UpdateAnswer(ctx, key, update); err != nil {
		return verdict, s.translate(err)
	}

	// A re-uploaded file answer orphans the previous object; delete it once the
	// new URL has actually replaced it (approved entries keep theirs).
	if s.uploads != nil && previousURL != "" {
		if current := oc.controller.Responses()[canonical].FileURL; current != previousURL {
			if err := s.uploads.Remove(ctx, previousURL); err != nil {
				logrus.WithField("checklist", publicID).Warnf("remove replaced file: %v", err)
			}
		}
	}
	return verdict, nil
}

func (s *Service) Navigate(ctx context.Context, publicID, direction string) (int, float64, error) {
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return 0, 0, err
	}
	switch direction {
	case "next":
		oc.controller.Next()
	case "previous":
		oc.controller.Previous()
	default:
		return 0, 0, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "direction must be next or previous", nil)
	}
	return oc.controller.Step(), oc.controller.PercentComplete(), nil
}

func (s *Service) ManualSave(ctx context.Context, publicID string) error {
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return err
	}
	if err := oc.controller.ManualSave(ctx); err != nil {
		return s.translate(err)
	}
	return nil
}

// Submit returns the index of the first invalid item (-1 when none) so the
// caller can navigate the producer there.
func (s *Service) Submit(ctx context.Context, publicID string) (int, error) {
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return -1, err
	}
	failIndex, err := oc.controller.Submit(ctx)
	if err != nil {
		return -1, s.translate(err)
	}
	return failIndex, nil
}

func (s *Service) Approve(ctx context.Context, publicID, key string) error {
	return s.audit(ctx, publicID, func(c *checklist.Controller) error {
		return c.Approve(ctx, key)
	})
}

func (s *Service) Reject(ctx context.Context, publicID, key, reason string) error {
	return s.audit(ctx, publicID, func(c *checklist.Controller) error {
		return c.Reject(ctx, key, reason)
	})
}

func (s *Service) Revalidate(ctx context.Context, publicID, key string) error {
	return s.audit(ctx, publicID, func(c *checklist.Controller) error {
		return c.Revalidate(ctx, key)
	})
}

func (s *Service) AcceptSuggestion(ctx context.Context, publicID, key string) error {
	return s.audit(ctx, publicID, func(c *checklist.Controller) error {
		return c.AcceptSuggestion(ctx, key)
	})
}

func (s *Service) InternalFill(ctx context.Context, publicID, key string, update checklist.Update) error {
	return s.audit(ctx, publicID, func(c *checklist.Controller) error {
		return c.InternalFill(ctx, key, update)
	})
}

// audit runs one auditor mutation and, on success, refreshes the canonical
// map from the store in the background. The controller already reverted to
// its snapshot if the persistence call failed.
func (s *Service) audit(ctx context.Context, publicID string, action func(*checklist.Controller) error) error {
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return err
	}
	if err := action(oc.controller); err != nil {
		return s.translate(err)
	}

	checklistID := oc.controller.Checklist().ID
	go func() {
		refreshCtx := context.Background()
		server, err := s.store.ListResponses(refreshCtx, checklistID)
		if err != nil {
			logrus.WithField("checklist", publicID).Warnf("background refresh: %v", err)
			return
		}
		oc.controller.Refresh(server)
	}()
	return nil
}

func (s *Service) Finalize(ctx context.Context, publicID string) error {
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return err
	}
	if err := oc.controller.Finalize(ctx); err != nil {
		if errors.Is(err, store.ErrUnresolvedChildren) {
			return domainError(http.StatusConflict, "UNRESOLVED_CHILDREN", "Checklist has unresolved correction or completion follow-ups", nil)
		}
		return s.translate(err)
	}

	if s.search != nil {
		cl := oc.controller.Checklist()
		s.search.IndexChecklist(search.ChecklistRecord{
			ID:           cl.ID,
			PublicID:     cl.PublicID,
			TemplateName: oc.templateName,
			ProducerID:   cl.ProducerID,
			ProducerName: oc.producerName,
			Status:       cl.Status,
		})
	}
	return nil
}

// UploadFile stores a file answer and returns its URL. The screening
// verdict for the stored file rides along; callers still pass the URL to
// UpdateAnswer, where block-mode enforcement happens.
func (s *Service) UploadFile(ctx context.Context, publicID, filename, contentType string, size int64, body io.Reader, itemName, itemType string) (string, screening.Verdict, error) {
	if s.uploads == nil {
		return "", screening.Verdict{}, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "File storage not configured", nil)
	}
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return "", screening.Verdict{}, err
	}

	// The upload occupies the controller's one in-flight network slot, so a
	// save or navigation issued mid-upload is rejected rather than racing it.
	if err := oc.controller.BeginUpload(); err != nil {
		return "", screening.Verdict{}, s.translate(err)
	}
	url, err := s.uploads.Store(ctx, publicID, filename, contentType, size, body)
	oc.controller.EndUpload(err)
	if err != nil {
		return "", screening.Verdict{}, err
	}

	var verdict screening.Verdict
	if s.screening != nil {
		verdict = s.screening.ScreenFile(ctx, url, itemName, itemType)
	}
	return url, verdict, nil
}

func (s *Service) ExportPDF(ctx context.Context, publicID string) (*export.Result, error) {
	oc, err := s.session(ctx, publicID)
	if err != nil {
		return nil, err
	}
	cl := oc.controller.Checklist()
	if cl.Status != "FINALIZED" {
		return nil, domainError(http.StatusConflict, "NOT_FINALIZED", "Only finalized checklists can be exported", nil)
	}
	report := export.BuildReport(cl, oc.templateName, oc.producerName, oc.controller.Items(), oc.controller.Responses())
	result, err := export.ExportPDF(report)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil)
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// translate maps controller sentinels onto domain errors the HTTP layer can
// serve without inspecting the checklist package.
func (s *Service) translate(err error) error {
	switch {
	case errors.Is(err, checklist.ErrFinalized):
		return domainError(http.StatusConflict, "CHECKLIST_FINALIZED", "Checklist is finalized and read-only", nil)
	case errors.Is(err, checklist.ErrSaveInFlight):
		return domainError(http.StatusConflict, "SAVE_IN_FLIGHT", "A save is already in progress", nil)
	case errors.Is(err, checklist.ErrFieldsRequired):
		return domainError(http.StatusConflict, "FIELD_SELECTION_REQUIRED", "Select fields before answering", nil)
	case errors.Is(err, checklist.ErrEmptySelection):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Select at least one field", nil)
	case errors.Is(err, checklist.ErrUnknownItem):
		return domainError(http.StatusNotFound, "ITEM_NOT_FOUND", "Unknown item key", nil)
	}
	return err
}
