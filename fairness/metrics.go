package fairness

import "github.com/liamcoop/studentrisk/models"

// Confusion counts outcomes with Dropout as the positive class.
type Confusion struct {
	TN, FP, FN, TP int
}

// Add records one (truth, prediction) pair.
func (c *Confusion) Add(truth, pred models.Label) {
	switch {
	case truth == models.Dropout && pred == models.Dropout:
		c.TP++
	case truth == models.Dropout:
		c.FN++
	case pred == models.Dropout:
		c.FP++
	default:
		c.TN++
	}
}

// Total returns the number of recorded pairs.
func (c Confusion) Total() int { return c.TN + c.FP + c.FN + c.TP }

// Matrix returns [[TN, FP], [FN, TP]].
func (c Confusion) Matrix() [2][2]int {
	return [2][2]int{{c.TN, c.FP}, {c.FN, c.TP}}
}

// Accuracy is 0 for an empty matrix.
func (c Confusion) Accuracy() float64 {
	return ratio(c.TP+c.TN, c.Total())
}

// Precision is 0 when nothing was predicted positive.
func (c Confusion) Precision() float64 {
	return ratio(c.TP, c.TP+c.FP)
}

// Recall is 0 when there are no actual positives.
func (c Confusion) Recall() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

// SelectionRate is the fraction predicted positive.
func (c Confusion) SelectionRate() float64 {
	return ratio(c.TP+c.FP, c.Total())
}

// Metrics returns accuracy, precision and recall.
func (c Confusion) Metrics() Metrics {
	return Metrics{Accuracy: c.Accuracy(), Precision: c.Precision(), Recall: c.Recall()}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// GroupMetrics are the metrics restricted to one group value.
type GroupMetrics struct {
	Group         string  `json:"group"`
	Size          int     `json:"size"`
	Accuracy      float64 `json:"accuracy"`
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	SelectionRate float64 `json:"selection_rate"`
}

// Report is the result of one fairness evaluation. SPD and EOD are nil when
// no group is present.
type Report struct {
	Model           string         `json:"model"`
	Grouping        string         `json:"grouping,omitempty"`
	Size            int            `json:"size"`
	Overall         Metrics        `json:"overall"`
	ConfusionMatrix [2][2]int      `json:"confusion_matrix"`
	GroupMetrics    []GroupMetrics `json:"group_metrics"`
	SPD             *float64       `json:"SPD"`
	EOD             *float64       `json:"EOD"`
}

// Disparities returns max-min selection rate (SPD) and max-min recall (EOD)
// across groups. Both are nil for an empty slice.
func Disparities(groups []GroupMetrics) (spd, eod *float64) {
	if len(groups) == 0 {
		return nil, nil
	}

	minSel, maxSel := groups[0].SelectionRate, groups[0].SelectionRate
	minRec, maxRec := groups[0].Recall, groups[0].Recall
	for _, g := range groups[1:] {
		minSel = min(minSel, g.SelectionRate)
		maxSel = max(maxSel, g.SelectionRate)
		minRec = min(minRec, g.Recall)
		maxRec = max(maxRec, g.Recall)
	}

	s, e := maxSel-minSel, maxRec-minRec
	return &s, &e
}
