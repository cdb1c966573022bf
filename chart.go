package yearcaster

import (
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// LineFit generates an echart line chart of the historical target series
// against the denormalized training-fit predictions.
func LineFit(title string, res *Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
	)

	actualData := make([]opts.LineData, 0, len(res.Actual))
	for _, v := range res.Actual {
		actualData = append(actualData, opts.LineData{Value: v})
	}

	// pad the fitted series so it aligns with the first fully windowed year
	offset := len(res.Years) - len(res.Fitted)
	fittedData := make([]opts.LineData, 0, len(res.Years))
	for i := 0; i < offset; i++ {
		fittedData = append(fittedData, opts.LineData{Value: nil})
	}
	for _, v := range res.Fitted {
		fittedData = append(fittedData, opts.LineData{Value: v})
	}

	line.SetXAxis(res.Years).
		AddSeries("Actual", actualData).
		AddSeries("Fitted", fittedData)
	return line
}

// LineForecast generates an echart line chart of the historical target series
// followed by the autoregressive forecast.
func LineForecast(title, target string, res *Result, forecast []ForecastRow) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
	)

	years := make([]int, 0, len(res.Years)+len(forecast))
	years = append(years, res.Years...)

	actualData := make([]opts.LineData, 0, len(years))
	forecastData := make([]opts.LineData, 0, len(years))
	for _, v := range res.Actual {
		actualData = append(actualData, opts.LineData{Value: v})
		forecastData = append(forecastData, opts.LineData{Value: nil})
	}
	// anchor the forecast line to the last actual point
	if len(res.Actual) > 0 {
		forecastData[len(forecastData)-1] = opts.LineData{Value: res.Actual[len(res.Actual)-1]}
	}
	for _, row := range forecast {
		years = append(years, row.Year)
		actualData = append(actualData, opts.LineData{Value: nil})
		forecastData = append(forecastData, opts.LineData{Value: row.Values[target]})
	}

	line.SetXAxis(years).
		AddSeries("Actual", actualData).
		AddSeries("Forecast", forecastData)
	return line
}

// WriteCharts renders the given charts as a single HTML page.
func WriteCharts(w io.Writer, lines ...*charts.Line) error {
	page := components.NewPage()
	for _, line := range lines {
		page.AddCharts(line)
	}
	return page.Render(w)
}
