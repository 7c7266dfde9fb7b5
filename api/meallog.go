package api

import (
	"context"

	"github.com/pkg/errors"
)

// MealLog is a day's recorded meals.
type MealLog struct {
	ID                int64  `json:"id,omitempty"`
	RecordDate        string `json:"recordDate,omitempty"` // yyyy-mm-dd
	Breakfast         string `json:"breakfast,omitempty"`
	Lunch             string `json:"lunch,omitempty"`
	Dinner            string `json:"dinner,omitempty"`
	BreakfastCalories int    `json:"breakfastCalories,omitempty"`
	LunchCalories     int    `json:"lunchCalories,omitempty"`
	DinnerCalories    int    `json:"dinnerCalories,omitempty"`
}

// MealLogs lists the authenticated user's meal calendar entries.
func (c *Client) MealLogs(ctx context.Context) ([]MealLog, error) {
	var logs []MealLog
	if err := c.getJSON(ctx, "/meallogs", &logs); err != nil {
		return nil, errors.Wrap(err, "[Client.MealLogs]")
	}
	return logs, nil
}
