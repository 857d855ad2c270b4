package model

// Stats aggregates the documents of one loan.
type Stats struct {
	LoanID           string         `json:"loan_id"`
	Total            int            `json:"total"`
	ByStatus         map[Status]int `json:"by_status"`
	ByCategory       map[string]int `json:"by_category"`
	ByType           map[string]int `json:"by_type"`
	Required         int            `json:"required"`
	RequiredApproved int            `json:"required_approved"`
}

// ComputeStats counts docs that belong to loanID. Documents of other loans are ignored.
func ComputeStats(loanID string, docs []Document) Stats {
	s := Stats{
		LoanID:     loanID,
		ByStatus:   map[Status]int{},
		ByCategory: map[string]int{},
		ByType:     map[string]int{},
	}
	for _, d := range docs {
		if d.LoanID != loanID {
			continue
		}
		s.Total++
		s.ByStatus[d.Status]++
		s.ByCategory[d.Category]++
		s.ByType[d.DocType]++
		if d.IsRequired {
			s.Required++
			if d.Status == StatusApproved {
				s.RequiredApproved++
			}
		}
	}
	return s
}
