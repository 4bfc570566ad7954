package gate

import (
	"context"
)

func init() {
	Register("room_summary", roomSummary)
}

// roomSummary collects the visible room names and conditions from a detail
// page's room table.
func roomSummary(ctx context.Context, page Evaluator) (map[string]any, error) {
	js := `(() => {
		const rooms = Array.from(document.querySelectorAll('.hprt-table .hprt-roomtype-icon-link'))
			.map(el => el.textContent.trim())
			.filter(name => name.length > 0);
		const conditions = Array.from(document.querySelectorAll('.hprt-table .hprt-conditions li'))
			.map(el => el.textContent.trim());
		return { rooms, conditions };
	})()`

	var out struct {
		Rooms      []string `json:"rooms"`
		Conditions []string `json:"conditions"`
	}
	if err := page.Evaluate(ctx, js, &out); err != nil {
		return nil, err
	}
	return map[string]any{
		"roomList":   out.Rooms,
		"conditions": out.Conditions,
	}, nil
}
