package app

import (
	"fieldbook/api/internal/checklist"
	"fieldbook/api/internal/store"
)

// ChecklistView is the render-ready shape of one open checklist: the flat
// materialized sequence, per-item responses, navigation state, and the
// field-selection gate.
type ChecklistView struct {
	PublicID          string          `json:"publicId"`
	TemplateName      string          `json:"templateName"`
	ProducerName      string          `json:"producerName"`
	Status            string          `json:"status"`
	ReadOnly          bool            `json:"readOnly"`
	ParentID          *string         `json:"parentId,omitempty"`
	Children          []ChildView     `json:"children,omitempty"`
	SelectionRequired bool            `json:"selectionRequired"`
	SelectedFieldIDs  []string        `json:"selectedFieldIds"`
	Fields            []FieldView     `json:"fields"`
	Items             []ItemView      `json:"items"`
	CurrentStep       int             `json:"currentStep"`
	PercentComplete   float64         `json:"percentComplete"`
	SaveState         string          `json:"saveState"`
}

type ChildView struct {
	PublicID string `json:"publicId"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
}

type FieldView struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Area *float64 `json:"area,omitempty"`
}

type ItemView struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Type           string       `json:"type"`
	Required       bool         `json:"required"`
	AskForQuantity bool         `json:"askForQuantity,omitempty"`
	DatabaseSource string       `json:"databaseSource,omitempty"`
	Options        []string     `json:"options,omitempty"`
	SectionName    string       `json:"sectionName"`
	Response       ResponseView `json:"response"`
}

type ResponseView struct {
	Answer           any      `json:"answer,omitempty"`
	Quantity         *float64 `json:"quantity,omitempty"`
	ObservationValue string   `json:"observationValue,omitempty"`
	FileURL          string   `json:"fileUrl,omitempty"`
	Status           string   `json:"status"`
	RejectionReason  string   `json:"rejectionReason,omitempty"`
	IsInternal       bool     `json:"isInternal,omitempty"`
}

func buildView(oc *openChecklist, fields []store.Field) ChecklistView {
	cl := oc.controller.Checklist()
	selection := oc.controller.Selection()
	responses := oc.controller.Responses()
	items := oc.controller.Items()

	view := ChecklistView{
		PublicID:          cl.PublicID,
		TemplateName:      oc.templateName,
		ProducerName:      oc.producerName,
		Status:            cl.Status,
		ReadOnly:          cl.Status == "FINALIZED",
		ParentID:          cl.ParentID,
		SelectionRequired: selection.SelectionRequired,
		SelectedFieldIDs:  selection.FieldIDs,
		CurrentStep:       oc.controller.Step(),
		PercentComplete:   oc.controller.PercentComplete(),
		SaveState:         string(oc.controller.SaveState()),
		Fields:            make([]FieldView, 0, len(fields)),
		Items:             make([]ItemView, 0, len(items)),
	}
	if view.SelectedFieldIDs == nil {
		view.SelectedFieldIDs = []string{}
	}

	for _, child := range cl.Children {
		view.Children = append(view.Children, ChildView{
			PublicID: child.PublicID,
			Kind:     child.Kind,
			Status:   child.Status,
		})
	}

	for _, f := range fields {
		view.Fields = append(view.Fields, FieldView{ID: f.ID, Name: f.Name, Area: f.Area})
	}

	for _, item := range items {
		view.Items = append(view.Items, ItemView{
			ID:             item.ID,
			Name:           item.Name,
			Type:           item.Type,
			Required:       item.Required,
			AskForQuantity: item.AskForQuantity,
			DatabaseSource: item.DatabaseSource,
			Options:        item.Options,
			SectionName:    item.SectionName,
			Response:       responseView(responses[item.ID]),
		})
	}

	return view
}

func responseView(resp checklist.Response) ResponseView {
	status := resp.Status
	if status == "" {
		status = checklist.StatusMissing
	}
	return ResponseView{
		Answer:           resp.Answer,
		Quantity:         resp.Quantity,
		ObservationValue: resp.ObservationValue,
		FileURL:          resp.FileURL,
		Status:           string(status),
		RejectionReason:  resp.RejectionReason,
		IsInternal:       resp.IsInternal,
	}
}
