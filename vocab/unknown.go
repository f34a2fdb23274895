package vocab

import (
	"fmt"
	"math/rand/v2"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultUnknownStd is the standard deviation used for words without a pretrained vector.
// It matches the norm of an average 100-dimensional GloVe vector.
const DefaultUnknownStd = 0.05

// CoverageReport describes how many rows had a vector before InitUnknown.
type CoverageReport struct {
	// AverageNorm is the average L2 norm of the Known rows.
	AverageNorm float64

	// Known is the number of rows that already had a non-zero vector. Covered all-zero rows are
	// kept as they are but only counted in Total.
	Known int

	// Total is the number of rows swept (all rows from the offset on).
	Total int
}

// String implements fmt.Stringer.
func (r CoverageReport) String() string {
	return fmt.Sprintf("average pretrained norm is %.4f, number of known words is %d, total number of words is %d",
		r.AverageNorm, r.Known, r.Total)
}

// Ratio returns the fraction of known rows, or 0 if no row was swept.
func (r CoverageReport) Ratio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Known) / float64(r.Total)
}

// InitUnknown draws a random vector, from N(0, std²), for every row from offset on that has no
// vector, and reports the coverage found before doing so.
//
// Rows without vector are those with Covered[i] == false. A Vocabulary whose Covered flags are nil
// (vectors set by hand) falls back to treating all-zero rows as missing. Rows drawn here are
// marked as covered, so a second call changes nothing.
func InitUnknown(v *Vocabulary, offset int, std float64, rng *rand.Rand) (CoverageReport, error) {
	var report CoverageReport
	if v.Vectors == nil {
		return report, errors.New("vocabulary has no embedding vectors to initialize")
	}
	if offset < 0 || offset > v.Len() {
		return report, errors.Errorf("invalid offset %d for vocabulary of size %d", offset, v.Len())
	}
	if std <= 0 {
		return report, errors.Errorf("invalid standard deviation %g for unknown vectors", std)
	}
	if v.Covered == nil {
		v.Covered = make([]bool, v.Len())
		for ii := range v.Covered {
			v.Covered[ii] = !v.Vectors.IsZero(ii)
		}
	}

	var runningNorm float64
	for ii := offset; ii < v.Len(); ii++ {
		report.Total++
		if v.Covered[ii] {
			norm := v.Vectors.Norm(ii)
			if norm == 0 {
				klog.Warningf("token %q has an all-zero pretrained vector, keeping it", v.Itos[ii])
				continue
			}
			runningNorm += norm
			report.Known++
			continue
		}
		v.Vectors.FillNormal(ii, std, rng)
		v.Covered[ii] = true
	}
	if report.Known > 0 {
		report.AverageNorm = runningNorm / float64(report.Known)
	}
	klog.Infof("%s", report)
	return report, nil
}
