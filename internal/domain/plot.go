package domain

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// PlotStatus is a crop-cycle state. The accepted set is configured per deployment.
type PlotStatus string

// DefaultPlotStatuses is the status set used when none is configured
var DefaultPlotStatuses = []PlotStatus{
	"unsown",
	"sown",
	"growing",
	"needsRipening",
	"readyToHarvest",
	"harvested",
	"damaged",
}

// StatusSet is the deployment's open enumeration of plot statuses
type StatusSet struct {
	allowed  map[PlotStatus]struct{}
	fallback PlotStatus
}

// NewStatusSet builds a set from names. The default must be a member;
// an empty default picks the first name.
func NewStatusSet(names []string, defaultStatus string) StatusSet {
	ordered := make([]PlotStatus, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			ordered = append(ordered, PlotStatus(n))
		}
	}
	if len(ordered) == 0 {
		ordered = DefaultPlotStatuses
	}

	s := StatusSet{allowed: make(map[PlotStatus]struct{}, len(ordered))}
	for _, st := range ordered {
		s.allowed[st] = struct{}{}
	}
	s.fallback = PlotStatus(strings.TrimSpace(defaultStatus))
	if !s.Contains(s.fallback) {
		s.fallback = ordered[0]
	}
	return s
}

// Contains reports whether st is accepted
func (s StatusSet) Contains(st PlotStatus) bool {
	_, ok := s.allowed[st]
	return ok
}

// Default is applied when a create omits status
func (s StatusSet) Default() PlotStatus {
	return s.fallback
}

// Location is the canonical plot position: a street address plus a
// WGS84 coordinate pair.
type Location struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// PlotOwner is the owner summary attached to plots on read
type PlotOwner struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// OwnerOf summarizes u for embedding in plot reads
func OwnerOf(u *User) *PlotOwner {
	if u == nil {
		return nil
	}
	return &PlotOwner{ID: u.ID, Username: u.Username, Email: u.Email}
}

// Plot is a tracked land parcel owned by exactly one principal.
// Owner is populated by reads and never persisted.
type Plot struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"ownerId"`
	Owner               *PlotOwner `json:"owner,omitempty"`
	Name                string     `json:"name"`
	Location            Location   `json:"location"`
	CropType            string     `json:"cropType"`
	LotCost             *float64   `json:"lotCost"`
	Area                float64    `json:"area"`
	Status              PlotStatus `json:"status"`
	SowingDate          Date       `json:"sowingDate"`
	ExpectedHarvestDate Date       `json:"expectedHarvestDate"`
	ActualHarvestDate   *Date      `json:"actualHarvestDate"`
	DamageDescription   *string    `json:"damageDescription"`
	Pests               *string    `json:"pests"`
	Humidity            *float64   `json:"humidity"`
	Deleted             bool       `json:"-"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// LocationInput is the create-time location; pointers detect missing coordinates.
type LocationInput struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

// NewPlot carries create fields. It has no owner field: the owner is
// always the requesting principal.
type NewPlot struct {
	Name                string         `json:"name"`
	Location            *LocationInput `json:"location"`
	CropType            string         `json:"cropType"`
	LotCost             *float64       `json:"lotCost"`
	Area                *float64       `json:"area"`
	Status              PlotStatus     `json:"status"`
	SowingDate          *Date          `json:"sowingDate"`
	ExpectedHarvestDate *Date          `json:"expectedHarvestDate"`
	ActualHarvestDate   *Date          `json:"actualHarvestDate"`
	DamageDescription   *string        `json:"damageDescription"`
	Pests               *string        `json:"pests"`
	Humidity            *float64       `json:"humidity"`
}

// Build checks required presence and returns the unsaved plot
func (n NewPlot) Build(ownerID string, statuses StatusSet) (*Plot, error) {
	v := NewValidationError()
	if strings.TrimSpace(n.Name) == "" {
		v.Add("name", "name is required")
	}
	if n.Location == nil {
		v.Add("location", "location is required")
	} else {
		if strings.TrimSpace(n.Location.Address) == "" {
			v.Add("location.address", "address is required")
		}
		if n.Location.Lat == nil {
			v.Add("location.lat", "latitude is required")
		}
		if n.Location.Lng == nil {
			v.Add("location.lng", "longitude is required")
		}
	}
	if strings.TrimSpace(n.CropType) == "" {
		v.Add("cropType", "crop type is required")
	}
	if n.Area == nil {
		v.Add("area", "area is required")
	}
	if n.SowingDate == nil {
		v.Add("sowingDate", "sowing date is required")
	}
	if n.ExpectedHarvestDate == nil {
		v.Add("expectedHarvestDate", "expected harvest date is required")
	}
	if !v.Empty() {
		return nil, v
	}

	status := n.Status
	if status == "" {
		status = statuses.Default()
	}

	p := &Plot{
		OwnerID: ownerID,
		Name:    n.Name,
		Location: Location{
			Address: n.Location.Address,
			Lat:     *n.Location.Lat,
			Lng:     *n.Location.Lng,
		},
		CropType:            n.CropType,
		LotCost:             n.LotCost,
		Area:                *n.Area,
		Status:              status,
		SowingDate:          *n.SowingDate,
		ExpectedHarvestDate: *n.ExpectedHarvestDate,
		ActualHarvestDate:   n.ActualHarvestDate,
		DamageDescription:   n.DamageDescription,
		Pests:               n.Pests,
		Humidity:            n.Humidity,
	}
	if err := ValidatePlot(p, statuses); err != nil {
		return nil, err
	}
	return p, nil
}

// LocationPatch updates location sub-fields independently, so a patch
// carrying only an address keeps the stored coordinates.
type LocationPatch struct {
	Address Optional[string]  `json:"address"`
	Lat     Optional[float64] `json:"lat"`
	Lng     Optional[float64] `json:"lng"`
}

func (lp LocationPatch) validate(v *ValidationError) {
	if lp.Address.Null {
		v.Add("location.address", "address cannot be null")
	}
	if lp.Lat.Null {
		v.Add("location.lat", "latitude cannot be null")
	}
	if lp.Lng.Null {
		v.Add("location.lng", "longitude cannot be null")
	}
}

func (lp LocationPatch) apply(loc *Location) {
	applyTo(lp.Address, &loc.Address)
	applyTo(lp.Lat, &loc.Lat)
	applyTo(lp.Lng, &loc.Lng)
}

// PlotPatch is a partial plot update. It has no owner
// field, so owner keys in a request body are dropped by the decoder.
type PlotPatch struct {
	Name                Optional[string]        `json:"name"`
	Location            Optional[LocationPatch] `json:"location"`
	CropType            Optional[string]        `json:"cropType"`
	LotCost             Optional[float64]       `json:"lotCost"`
	Area                Optional[float64]       `json:"area"`
	Status              Optional[PlotStatus]    `json:"status"`
	SowingDate          Optional[Date]          `json:"sowingDate"`
	ExpectedHarvestDate Optional[Date]          `json:"expectedHarvestDate"`
	ActualHarvestDate   Optional[Date]          `json:"actualHarvestDate"`
	DamageDescription   Optional[string]        `json:"damageDescription"`
	Pests               Optional[string]        `json:"pests"`
	Humidity            Optional[float64]       `json:"humidity"`
}

// Validate rejects nulls on required fields
func (p PlotPatch) Validate() error {
	v := NewValidationError()
	required := map[string]bool{
		"name":                p.Name.Null,
		"location":            p.Location.Null,
		"cropType":            p.CropType.Null,
		"area":                p.Area.Null,
		"status":              p.Status.Null,
		"sowingDate":          p.SowingDate.Null,
		"expectedHarvestDate": p.ExpectedHarvestDate.Null,
	}
	for field, isNull := range required {
		if isNull {
			v.Add(field, field+" cannot be null")
		}
	}
	if loc, ok := p.Location.Get(); ok {
		loc.validate(v)
	}
	return v.OrNil()
}

// Apply merges provided fields into plot. Absent fields keep their value,
// provided zero values are written, null clears nullable fields.
func (p PlotPatch) Apply(plot *Plot) {
	applyTo(p.Name, &plot.Name)
	if loc, ok := p.Location.Get(); ok {
		loc.apply(&plot.Location)
	}
	applyTo(p.CropType, &plot.CropType)
	applyNullable(p.LotCost, &plot.LotCost)
	applyTo(p.Area, &plot.Area)
	applyTo(p.Status, &plot.Status)
	applyTo(p.SowingDate, &plot.SowingDate)
	applyTo(p.ExpectedHarvestDate, &plot.ExpectedHarvestDate)
	applyNullable(p.ActualHarvestDate, &plot.ActualHarvestDate)
	applyNullable(p.DamageDescription, &plot.DamageDescription)
	applyNullable(p.Pests, &plot.Pests)
	applyNullable(p.Humidity, &plot.Humidity)
}

// ValidatePlot checks field bounds on a complete plot record
func ValidatePlot(p *Plot, statuses StatusSet) error {
	v := NewValidationError()
	switch {
	case strings.TrimSpace(p.Name) == "":
		v.Add("name", "name is required")
	case utf8.RuneCountInString(p.Name) > 100:
		v.Add("name", "name must be at most 100 characters")
	}
	switch {
	case strings.TrimSpace(p.Location.Address) == "":
		v.Add("location.address", "address is required")
	case utf8.RuneCountInString(p.Location.Address) > 255:
		v.Add("location.address", "address must be at most 255 characters")
	}
	if p.Location.Lat < -90 || p.Location.Lat > 90 {
		v.Add("location.lat", "latitude must be between -90 and 90")
	}
	if p.Location.Lng < -180 || p.Location.Lng > 180 {
		v.Add("location.lng", "longitude must be between -180 and 180")
	}
	switch {
	case strings.TrimSpace(p.CropType) == "":
		v.Add("cropType", "crop type is required")
	case utf8.RuneCountInString(p.CropType) > 50:
		v.Add("cropType", "crop type must be at most 50 characters")
	}
	if p.Area <= 0 {
		v.Add("area", "area must be greater than 0")
	}
	if p.LotCost != nil && *p.LotCost < 0 {
		v.Add("lotCost", "lot cost cannot be negative")
	}
	if !statuses.Contains(p.Status) {
		v.Add("status", "invalid status value")
	}
	if p.SowingDate.IsZero() {
		v.Add("sowingDate", "sowing date is required")
	}
	if p.ExpectedHarvestDate.IsZero() {
		v.Add("expectedHarvestDate", "expected harvest date is required")
	}
	if p.DamageDescription != nil && utf8.RuneCountInString(*p.DamageDescription) > 255 {
		v.Add("damageDescription", "damage description must be at most 255 characters")
	}
	if p.Pests != nil && utf8.RuneCountInString(*p.Pests) > 255 {
		v.Add("pests", "pests must be at most 255 characters")
	}
	return v.OrNil()
}

// PlotRepository defines data access for plots. Reads never return
// soft-deleted rows.
type PlotRepository interface {
	Create(ctx context.Context, plot *Plot) error
	GetByID(ctx context.Context, id string) (*Plot, error)
	List(ctx context.Context) ([]*Plot, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Plot, error)
	Update(ctx context.Context, plot *Plot) error
	SoftDelete(ctx context.Context, id string) error
}
