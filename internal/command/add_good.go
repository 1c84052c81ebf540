package command

import (
	"strconv"
	"strings"

	"gsd.app/relay/internal/model"
)

// AddGoodFields is the structured "add" instruction as submitted by clients.
type AddGoodFields struct {
	Name     string `json:"name" form:"name"`
	TempMin  string `json:"temp_min" form:"temp_min"`
	TempMax  string `json:"temp_max" form:"temp_max"`
	LightMin string `json:"light_min" form:"light_min"`
	LightMax string `json:"light_max" form:"light_max"`
}

// ParseAddGood validates the five fields and builds an AddGoodDefinition.
func ParseAddGood(f AddGoodFields) (model.Job, error) {
	tempMin, err := parseField("temp_min", f.TempMin)
	if err != nil {
		return nil, err
	}
	tempMax, err := parseField("temp_max", f.TempMax)
	if err != nil {
		return nil, err
	}
	lightMin, err := parseField("light_min", f.LightMin)
	if err != nil {
		return nil, err
	}
	lightMax, err := parseField("light_max", f.LightMax)
	if err != nil {
		return nil, err
	}

	return model.NewAddGoodDefinition(
		strings.TrimSpace(f.Name),
		model.Range{Min: tempMin, Max: tempMax},
		model.Range{Min: lightMin, Max: lightMax},
	)
}

func parseField(field, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &model.ValidationError{Kind: model.MissingField, Field: field}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ParseError{Kind: MalformedNumber, Input: raw, Pos: -1, Field: field, Msg: "not an integer"}
	}
	return v, nil
}
