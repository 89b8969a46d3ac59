package render

import (
	"kvitto/internal/core"
)

// ChartData is the series behind the monthly bar chart. Values are exact
// decimal strings in the same order as Labels.
type ChartData struct {
	Labels []string `json:"labels"`
	Values []string `json:"values"`
}

// ChartOptions sizes and titles a chart page.
type ChartOptions struct {
	Title  string
	Width  int
	Height int
	Dark   bool
}

// ServeChart is the chart page served over HTTP.
var ServeChart = ChartOptions{Title: "All time", Width: 2000, Height: 400}

// FileChart is the standalone chart written by the chart command.
var FileChart = ChartOptions{Title: "Nightingale Chart", Width: 2000, Height: 500, Dark: true}

// Chart returns one label and value per group, in group order.
func Chart(groups []core.Group) ChartData {
	data := ChartData{
		Labels: make([]string, 0, len(groups)),
		Values: make([]string, 0, len(groups)),
	}
	for _, g := range groups {
		data.Labels = append(data.Labels, g.Month.String())
		data.Values = append(data.Values, g.Total.String())
	}
	return data
}
