package workflow

// Promotion is the structured output of the pricing stage. An absent
// promotion means "no promotion this cycle", which is a valid outcome.
type Promotion struct {
	PromotionID     string `json:"promotion_id"`
	Theme           string `json:"theme"`
	ProductCategory string `json:"product_category"`
	ProductItem     string `json:"product_item"`
	DiscountType    string `json:"discount_type"`
	ValidUntil      string `json:"valid_until"`
	Reason          string `json:"reason"`
	VisualPrompt    string `json:"visual_prompt"`
	Headline        string `json:"marketing_copy_headline"`
	Body            string `json:"marketing_copy_body"`
	PriceOriginal   string `json:"price_original"`
	PricePromo      string `json:"price_promo"`
}

// State is the shared record threaded through every stage of a run.
// Context accumulates; every other field is overwrite-only, and only
// specific stages write each one.
type State struct {
	Issue      string     `json:"issue"`
	Context    []string   `json:"context"`
	Decision   string     `json:"decision,omitempty"`
	Feedback   string     `json:"feedback,omitempty"`
	Promotion  *Promotion `json:"promotion_data,omitempty"`
	PosterPath string     `json:"poster_path,omitempty"`
	TargetDate string     `json:"target_date,omitempty"`
}

// Update is a partial state update produced by a stage or a human resume.
// Context entries are appended; nil pointer fields are left untouched and
// non-nil pointers overwrite.
type Update struct {
	Context    []string
	Decision   *string
	Feedback   *string
	Promotion  *Promotion
	PosterPath *string
	TargetDate *string
}

// Apply merges an update into the state. Applying two sequential updates
// is equivalent to applying one update with concatenated context and
// last-writer-wins scalars.
func (s *State) Apply(u *Update) {
	if u == nil {
		return
	}
	s.Context = append(s.Context, u.Context...)
	if u.Decision != nil {
		s.Decision = *u.Decision
	}
	if u.Feedback != nil {
		s.Feedback = *u.Feedback
	}
	if u.Promotion != nil {
		s.Promotion = u.Promotion
	}
	if u.PosterPath != nil {
		s.PosterPath = *u.PosterPath
	}
	if u.TargetDate != nil {
		s.TargetDate = *u.TargetDate
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = append([]string(nil), s.Context...)
	if s.Promotion != nil {
		promo := *s.Promotion
		out.Promotion = &promo
	}
	return &out
}

// String returns a pointer to a string value, for Update literals.
func String(v string) *string {
	return &v
}
