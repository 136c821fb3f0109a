package workorders

import "time"

// Translator converts work orders between the Client schema and the internal schema.
type Translator interface {
	ToInternal(in ClientWorkOrder) (WorkOrder, error)
	ToExternal(wo WorkOrder) (ClientWorkOrder, error)
}

// flagRule binds a Client boolean flag to the internal status it selects.
type flagRule struct {
	Flag   string
	Status Status
	isSet  func(ClientWorkOrder) bool
}

// statusPriority is evaluated top to bottom; the first set flag wins.
var statusPriority = []flagRule{
	{Flag: "isDone", Status: StatusCompleted, isSet: func(c ClientWorkOrder) bool { return c.IsDone }},
	{Flag: "isCanceled", Status: StatusCancelled, isSet: func(c ClientWorkOrder) bool { return c.IsCanceled }},
	{Flag: "isOnHold", Status: StatusOnHold, isSet: func(c ClientWorkOrder) bool { return c.IsOnHold }},
	{Flag: "isActive", Status: StatusInProgress, isSet: func(c ClientWorkOrder) bool { return c.IsActive }},
	{Flag: "isPending", Status: StatusPending, isSet: func(c ClientWorkOrder) bool { return c.IsPending }},
}

// DefaultStatus is used when no status flag is set.
const DefaultStatus = StatusPending

// DataTranslator is the stateless Translator used in production.
type DataTranslator struct{}

// NewTranslator returns a DataTranslator.
func NewTranslator() *DataTranslator {
	return &DataTranslator{}
}

// ResolveStatus picks the internal status for a Client record's flag set.
func ResolveStatus(in ClientWorkOrder) Status {
	for _, r := range statusPriority {
		if r.isSet(in) {
			return r.Status
		}
	}
	return DefaultStatus
}

// Description derives the stored description from a title.
func Description(title string) string {
	return title + " description"
}

// ToInternal converts a Client record into a store record. It fails with
// MissingFieldError or InvalidDateError.
func (t *DataTranslator) ToInternal(in ClientWorkOrder) (WorkOrder, error) {
	var missing []string
	if in.OrderNo == nil {
		missing = append(missing, "orderNo")
	}
	if in.Summary == nil {
		missing = append(missing, "summary")
	}
	if in.CreationDate == nil {
		missing = append(missing, "creationDate")
	}
	if len(missing) > 0 {
		return WorkOrder{}, &MissingFieldError{Fields: missing}
	}

	createdAt, err := ParseTimestamp(*in.CreationDate)
	if err != nil {
		return WorkOrder{}, &InvalidDateError{Field: "creationDate", Value: *in.CreationDate, Err: err}
	}

	updatedAt := createdAt
	if in.LastUpdateDate != nil {
		updatedAt, err = ParseTimestamp(*in.LastUpdateDate)
		if err != nil {
			return WorkOrder{}, &InvalidDateError{Field: "lastUpdateDate", Value: *in.LastUpdateDate, Err: err}
		}
	}

	wo := WorkOrder{
		Number:      *in.OrderNo,
		Title:       *in.Summary,
		Description: Description(*in.Summary),
		Status:      ResolveStatus(in),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		Deleted:     in.IsDeleted,
	}

	if in.IsDeleted && in.DeletedDate != nil {
		deletedAt, err := ParseTimestamp(*in.DeletedDate)
		if err != nil {
			return WorkOrder{}, &InvalidDateError{Field: "deletedDate", Value: *in.DeletedDate, Err: err}
		}
		wo.DeletedAt = &deletedAt
	}

	return wo, nil
}

// ToExternal converts a store record into a Client record. An empty title is
// exported as an empty summary.
func (t *DataTranslator) ToExternal(wo WorkOrder) (ClientWorkOrder, error) {
	var missing []string
	if wo.Number == 0 {
		missing = append(missing, "number")
	}
	if wo.Status == "" {
		missing = append(missing, "status")
	}
	if wo.CreatedAt.IsZero() {
		missing = append(missing, "createdAt")
	}
	if wo.UpdatedAt.IsZero() {
		missing = append(missing, "updatedAt")
	}
	if len(missing) > 0 {
		return ClientWorkOrder{}, &MissingFieldError{Fields: missing}
	}
	if !wo.Status.Valid() {
		return ClientWorkOrder{}, &InvalidStatusError{Status: string(wo.Status)}
	}

	created, err := formatField("createdAt", wo.CreatedAt)
	if err != nil {
		return ClientWorkOrder{}, err
	}
	updated, err := formatField("updatedAt", wo.UpdatedAt)
	if err != nil {
		return ClientWorkOrder{}, err
	}

	out := ClientWorkOrder{
		OrderNo:        Int64(wo.Number),
		Summary:        String(wo.Title),
		CreationDate:   &created,
		LastUpdateDate: &updated,
		IsDeleted:      wo.Deleted,
		IsDone:         wo.Status == StatusCompleted,
		IsCanceled:     wo.Status == StatusCancelled,
		IsOnHold:       wo.Status == StatusOnHold,
		IsPending:      wo.Status == StatusPending,
		IsActive:       wo.Status == StatusInProgress,
	}

	if wo.DeletedAt != nil {
		deleted, err := formatField("deletedAt", *wo.DeletedAt)
		if err != nil {
			return ClientWorkOrder{}, err
		}
		out.DeletedDate = &deleted
	}

	return out, nil
}

func formatField(field string, t time.Time) (string, error) {
	s, err := FormatTimestamp(t)
	if err != nil {
		return "", &InvalidTimestampError{Field: field, Err: err}
	}
	return s, nil
}

// StatusMapping describes how Client flags resolve to internal statuses.
type StatusMapping struct {
	ValidStatuses []Status          `json:"valid_statuses"`
	Priority      []string          `json:"priority"`
	FlagToStatus  map[string]Status `json:"flag_to_status"`
	Default       Status            `json:"default"`
}

// StatusMappingInfo reports the status set and flag priority used by the translator.
func (t *DataTranslator) StatusMappingInfo() StatusMapping {
	m := StatusMapping{
		ValidStatuses: append([]Status(nil), ValidStatuses...),
		FlagToStatus:  make(map[string]Status, len(statusPriority)),
		Default:       DefaultStatus,
	}
	for _, r := range statusPriority {
		m.Priority = append(m.Priority, r.Flag)
		m.FlagToStatus[r.Flag] = r.Status
	}
	return m
}
