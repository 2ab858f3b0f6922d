package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/chart"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// visualizeRequest is the JSON body of /api/visualize and /api/export.
type visualizeRequest struct {
	DatasetID  string             `json:"dataset_id" validate:"required"`
	ChartType  string             `json:"chart_type" validate:"required"`
	Title      string             `json:"title" validate:"max=200"`
	XAxis      analysis.ColumnRef `json:"x_axis"`
	YAxis      analysis.ColumnRef `json:"y_axis"`
	Color      analysis.ColumnRef `json:"color"`
	Category   analysis.ColumnRef `json:"category"`
	Value      analysis.ColumnRef `json:"value"`
	DateColumn analysis.ColumnRef `json:"date_column"`
	StartDate  string             `json:"start_date"`
	EndDate    string             `json:"end_date"`
	Resample   string             `json:"resample"`
	GroupBy    analysis.ColumnRef `json:"group_by"`
	AggColumns []string           `json:"agg_columns" validate:"max=50"`
	AggFunc    string             `json:"agg_func"`
	Columns    []string           `json:"columns" validate:"max=50"`
}

// exportRequest adds the output format and image size.
type exportRequest struct {
	visualizeRequest
	Format string `json:"format" validate:"required,oneof=csv xlsx png"`
	Width  int    `json:"width" validate:"omitempty,min=100,max=4000"`
	Height int    `json:"height" validate:"omitempty,min=100,max=4000"`
}

// dataQuery is the pagination of /api/data/{id}.
type dataQuery struct {
	Limit  int `json:"limit" validate:"min=1,max=10000"`
	Offset int `json:"offset" validate:"min=0"`
}

// requestError is a client mistake in the request envelope itself.
type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// checkStruct runs validator tags and reports the first failing field.
func checkStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return badRequest("missing required parameter: %s", fe.Field())
		}
		if fe.Param() != "" {
			return badRequest("invalid %s: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return badRequest("invalid %s", fe.Field())
	}
	return err
}

// chartRequest converts the envelope into a chart request. Dates are parsed
// with the same layouts used for column classification.
func (v visualizeRequest) chartRequest() (chart.Request, error) {
	req := chart.Request{
		Kind:     chart.Kind(v.ChartType),
		Title:    v.Title,
		X:        v.XAxis,
		Y:        v.YAxis,
		Color:    v.Color,
		Category: v.Category,
		Value:    v.Value,
		Date:     v.DateColumn,
		Resample: chart.Frequency(v.Resample),
		GroupBy:  v.GroupBy,
		AggCols:  v.AggColumns,
		AggFunc:  chart.AggFunc(v.AggFunc),
		Columns:  v.Columns,
	}
	start, err := parseDate("start_date", v.StartDate)
	if err != nil {
		return req, err
	}
	end, err := parseDate("end_date", v.EndDate)
	if err != nil {
		return req, err
	}
	if !start.IsZero() || !end.IsZero() {
		req.Range = &chart.DateRange{Start: start, End: end}
	}
	return req, nil
}

func parseDate(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	ts, ok := analysis.ParseTime(raw)
	if !ok {
		return time.Time{}, badRequest("invalid %s: %q is not a date", field, raw)
	}
	return ts, nil
}
