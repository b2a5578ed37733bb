package types

type RecordId uint

const (
	FieldDescription = "description"
	FieldPrice       = "price"
)

// Baseline is the pristine snapshot taken when a record is loaded. It is the
// diff base for changed markers and for the commit payload, never mutated.
type Baseline struct {
	Description string            `json:"description"`
	Price       string            `json:"price"`
	Attributes  map[string]string `json:"attributes"`
}

type Record struct {
	Id          RecordId          `json:"id"`
	Description string            `json:"description"`
	Price       string            `json:"price"`
	Attributes  map[string]string `json:"attributes"`
	Flags       map[string]bool   `json:"flags,omitempty"`
	Image       string            `json:"image,omitempty"`
	Baseline    *Baseline         `json:"-"`
}

// FieldValue returns the current value for description, price or an
// attribute column. The bool is false for a field the record does not carry.
func (r *Record) FieldValue(field string) (string, bool) {
	switch field {
	case FieldDescription:
		return r.Description, true
	case FieldPrice:
		return r.Price, true
	}
	v, ok := r.Attributes[field]
	return v, ok
}

func (r *Record) BaselineValue(field string) (string, bool) {
	if r.Baseline == nil {
		return "", false
	}
	switch field {
	case FieldDescription:
		return r.Baseline.Description, true
	case FieldPrice:
		return r.Baseline.Price, true
	}
	v, ok := r.Baseline.Attributes[field]
	return v, ok
}

// IsChanged is always derived from the two stored values, there is no flag
// that can drift out of sync.
func (r *Record) IsChanged(field string) bool {
	if r.Baseline == nil {
		return false
	}
	current, ok := r.FieldValue(field)
	if !ok {
		return false
	}
	original, _ := r.BaselineValue(field)
	return current != original
}

func (r *Record) HasFlag(name string) bool {
	return r.Flags[name]
}

// TakeBaseline snapshots the current values as the new diff base.
func (r *Record) TakeBaseline() {
	attrs := make(map[string]string, len(r.Attributes))
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	r.Baseline = &Baseline{
		Description: r.Description,
		Price:       r.Price,
		Attributes:  attrs,
	}
}

func (r *Record) Clone() *Record {
	n := &Record{
		Id:          r.Id,
		Description: r.Description,
		Price:       r.Price,
		Attributes:  make(map[string]string, len(r.Attributes)),
		Image:       r.Image,
	}
	for k, v := range r.Attributes {
		n.Attributes[k] = v
	}
	if len(r.Flags) > 0 {
		n.Flags = make(map[string]bool, len(r.Flags))
		for k, v := range r.Flags {
			n.Flags[k] = v
		}
	}
	return n
}

// GridLayout describes the column layout of a parsed grid file, keeping the
// original header texts so an export can rebuild the same file shape.
type GridLayout struct {
	IdHeader          string   `json:"idHeader"`
	DescriptionHeader string   `json:"descriptionHeader"`
	AttributeHeaders  []string `json:"attributeHeaders"`
	FlagHeaders       []string `json:"flagHeaders"`
	PriceHeader       string   `json:"priceHeader,omitempty"`
}

func (l *GridLayout) HasPrice() bool {
	return l.PriceHeader != ""
}

// BootstrapData is one full parsed grid, records in file order.
type BootstrapData struct {
	Layout  GridLayout `json:"layout"`
	Records []*Record  `json:"records"`
}

func (d *BootstrapData) Clone() *BootstrapData {
	n := &BootstrapData{
		Layout: GridLayout{
			IdHeader:          d.Layout.IdHeader,
			DescriptionHeader: d.Layout.DescriptionHeader,
			AttributeHeaders:  append([]string{}, d.Layout.AttributeHeaders...),
			FlagHeaders:       append([]string{}, d.Layout.FlagHeaders...),
			PriceHeader:       d.Layout.PriceHeader,
		},
		Records: make([]*Record, len(d.Records)),
	}
	for i, r := range d.Records {
		n.Records[i] = r.Clone()
	}
	return n
}
