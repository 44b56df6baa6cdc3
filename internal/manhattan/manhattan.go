// Package manhattan consumes a chrom/pos-ordered variant stream for one
// phenotype and reduces it to a plotting-ready structure: a handful of
// high-resolution peaks and unbinned points plus dense low-resolution bins
// for everything else, bounded in size regardless of input size.
package manhattan

import (
	"fmt"
	"math"
	"sort"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/chrom"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/pqueue"
)

// Variant is one input record. Extra carries whatever payload the caller
// wants reflected back in the output (ref/alt/af/rsids, ...) untouched.
type Variant struct {
	Chrom string      `json:"chrom"`
	Pos   int         `json:"pos"`
	Pval  float64     `json:"pval"`
	Extra interface{} `json:"extra,omitempty"`
}

// OutputVariant is a Variant annotated with its role in the result.
type OutputVariant struct {
	Variant
	Peak                 bool `json:"peak"`
	NumSignificantInPeak int  `json:"num_significant_in_peak,omitempty"`
}

// Bin is one low-resolution tile of -log10(pval) density.
type Bin struct {
	Chrom       string       `json:"chrom"`
	PosBinID    int          `json:"pos_bin_id"`
	CenterPos   int          `json:"center_pos"`
	Qvals       []float64    `json:"qvals"`
	QvalExtents [][2]float64 `json:"qval_extents"`
}

// Result is the complete output of one binning run.
type Result struct {
	Bins             []Bin           `json:"bins"`
	UnbinnedVariants []OutputVariant `json:"unbinned_variants"`
	WeakestPval      float64         `json:"weakest_pval"`
}

// Params holds the tunable thresholds for one run. Use DefaultParams and
// override only what the caller needs to change.
type Params struct {
	PeakPvalThr    float64 // P1
	PeakSprawlDist int     // D, bp
	PeakCountThr   float64 // P2, must be < PeakPvalThr
	PeakCap        int     // K
	UnbinnedCap    int     // U
	BinLength      int     // L, bp
	QvalBinStart   float64
}

// DefaultParams returns the standard thresholds used across the browser.
func DefaultParams() Params {
	return Params{
		PeakPvalThr:    1e-6,
		PeakSprawlDist: 200_000,
		PeakCountThr:   5e-8,
		PeakCap:        500,
		UnbinnedCap:    500,
		BinLength:      3_000_000,
		QvalBinStart:   0.05,
	}
}

type binAcc struct {
	qvals map[float64]bool
}

// Binner runs the single-pass algorithm over a chrom/pos-ordered stream.
type Binner struct {
	params Params

	peakOpen      bool
	peakBest      OutputVariant
	peakLastChrom string
	peakLastPos   int
	peakCount     int

	peakHeap     *pqueue.Queue
	unbinnedHeap *pqueue.Queue

	bins map[string]map[int]*binAcc

	qvalBin     float64
	weakestPval float64

	haveLast  bool
	lastChrom string
	lastPos   int
}

// New constructs a Binner. Panics if params.PeakCountThr >= params.PeakPvalThr,
// mirroring the assertion the reference implementation makes at startup.
func New(params Params) *Binner {
	if params.PeakCountThr >= params.PeakPvalThr {
		panic("manhattan: peak count threshold must be below peak pval threshold")
	}
	return &Binner{
		params:       params,
		peakHeap:     pqueue.New(),
		unbinnedHeap: pqueue.New(),
		bins:         make(map[string]map[int]*binAcc),
		qvalBin:      params.QvalBinStart,
	}
}

// Process consumes one variant. v.Chrom must already be in canonical form;
// input arriving out of (chrom_index, pos) order fails with
// InputOrderViolation naming the offending pair.
func (b *Binner) Process(v Variant) error {
	const op = apperr.Op("manhattan.Process")

	if _, err := chrom.Index(v.Chrom); err != nil {
		return apperr.Wrap(op, err)
	}
	if b.haveLast && chrom.Less(v.Chrom, v.Pos, b.lastChrom, b.lastPos) {
		return apperr.E(op, apperr.KindInputOrderViolation,
			fmt.Sprintf("variant (%s,%d) arrived after (%s,%d)", v.Chrom, v.Pos, b.lastChrom, b.lastPos))
	}
	b.lastChrom, b.lastPos, b.haveLast = v.Chrom, v.Pos, true

	if v.Pval > b.weakestPval {
		b.weakestPval = v.Pval
	}
	if v.Pval != 0 {
		b.growQvalBin(computeQval(v.Pval))
	}

	if v.Pval < b.params.PeakPvalThr {
		b.processPeakCandidate(v)
	} else {
		b.unbinnedHeap.AddCapped(OutputVariant{Variant: v}, v.Pval, b.params.UnbinnedCap, b.evictToBin)
	}
	return nil
}

func (b *Binner) processPeakCandidate(v Variant) {
	if !b.peakOpen {
		b.openPeak(v)
		return
	}
	extends := v.Chrom == b.peakLastChrom && v.Pos <= b.peakLastPos+b.params.PeakSprawlDist
	if extends {
		b.peakLastChrom, b.peakLastPos = v.Chrom, v.Pos
		if v.Pval < b.params.PeakCountThr {
			b.peakCount++
		}
		if v.Pval < b.peakBest.Pval {
			demoted := b.peakBest
			b.peakBest = OutputVariant{Variant: v}
			b.unbinnedHeap.AddCapped(demoted, demoted.Pval, b.params.UnbinnedCap, b.evictToBin)
		} else {
			b.unbinnedHeap.AddCapped(OutputVariant{Variant: v}, v.Pval, b.params.UnbinnedCap, b.evictToBin)
		}
		return
	}
	b.closeOpenPeak()
	b.openPeak(v)
}

func (b *Binner) openPeak(v Variant) {
	b.peakOpen = true
	b.peakBest = OutputVariant{Variant: v}
	b.peakLastChrom, b.peakLastPos = v.Chrom, v.Pos
	if v.Pval < b.params.PeakCountThr {
		b.peakCount = 1
	} else {
		b.peakCount = 0
	}
}

func (b *Binner) closeOpenPeak() {
	if !b.peakOpen {
		return
	}
	best := b.peakBest
	best.Peak = true
	best.NumSignificantInPeak = b.peakCount
	b.peakHeap.AddCapped(best, best.Pval, b.params.PeakCap, b.evictPeakToUnbinned)
	b.peakOpen = false
	b.peakBest = OutputVariant{}
	b.peakCount = 0
}

// evictPeakToUnbinned handles overflow of the peak heap: the evicted entry
// keeps competing for a place among unbinned points instead of being binned
// directly, matching the three-tier cascade.
func (b *Binner) evictPeakToUnbinned(it pqueue.Item) {
	ov := it.Value.(OutputVariant)
	ov.Peak = false
	ov.NumSignificantInPeak = 0
	b.unbinnedHeap.AddCapped(ov, ov.Pval, b.params.UnbinnedCap, b.evictToBin)
}

func (b *Binner) evictToBin(it pqueue.Item) {
	ov := it.Value.(OutputVariant)
	b.binVariant(ov.Variant)
}

func (b *Binner) binVariant(v Variant) {
	posBinID := v.Pos / b.params.BinLength
	byChrom, ok := b.bins[v.Chrom]
	if !ok {
		byChrom = make(map[int]*binAcc)
		b.bins[v.Chrom] = byChrom
	}
	acc, ok := byChrom[posBinID]
	if !ok {
		acc = &binAcc{qvals: make(map[float64]bool)}
		byChrom[posBinID] = acc
	}
	acc.qvals[quantize(computeQval(v.Pval), b.qvalBin)] = true
}

// growQvalBin enlarges the bin width when a stronger association than the
// current width supports has been observed. It never shrinks.
func (b *Binner) growQvalBin(qval float64) {
	if qval > 40 {
		if b.qvalBin < 0.2 {
			b.qvalBin = 0.2
		}
	} else if qval > 20 {
		if b.qvalBin < 0.1 {
			b.qvalBin = 0.1
		}
	}
}

// Finalize closes any open peak, drains both heaps, and returns the
// plotting-ready result. The Binner must not be reused afterward.
func (b *Binner) Finalize() Result {
	b.closeOpenPeak()

	var out []OutputVariant
	for _, it := range b.peakHeap.Drain() {
		out = append(out, it.Value.(OutputVariant))
	}
	for _, it := range b.unbinnedHeap.Drain() {
		out = append(out, it.Value.(OutputVariant))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pval < out[j].Pval })

	var chroms []string
	for c := range b.bins {
		chroms = append(chroms, c)
	}
	sort.Slice(chroms, func(i, j int) bool {
		ii, _ := chrom.Index(chroms[i])
		jj, _ := chrom.Index(chroms[j])
		return ii < jj
	})

	var bins []Bin
	finalQvalBin := b.qvalBin
	for _, c := range chroms {
		byPos := b.bins[c]
		var posBinIDs []int
		for p := range byPos {
			posBinIDs = append(posBinIDs, p)
		}
		sort.Ints(posBinIDs)
		for _, posBinID := range posBinIDs {
			acc := byPos[posBinID]
			requantized := make(map[float64]bool, len(acc.qvals))
			for q := range acc.qvals {
				requantized[quantize(q, finalQvalBin)] = true
			}
			values := make([]float64, 0, len(requantized))
			for q := range requantized {
				values = append(values, q)
			}
			singles, extents := compress(values, finalQvalBin)
			bins = append(bins, Bin{
				Chrom:       c,
				PosBinID:    posBinID,
				CenterPos:   posBinID*b.params.BinLength + b.params.BinLength/2,
				Qvals:       singles,
				QvalExtents: extents,
			})
		}
	}

	return Result{
		Bins:             bins,
		UnbinnedVariants: out,
		WeakestPval:      b.weakestPval,
	}
}

func computeQval(pval float64) float64 {
	if pval <= 0 {
		return math.Inf(1)
	}
	return -math.Log10(pval)
}

func quantize(qval, binSize float64) float64 {
	if math.IsInf(qval, 1) {
		return qval
	}
	n := math.Floor(qval / binSize)
	v := n*binSize + binSize/2
	return math.Round(v*1000) / 1000
}

// compress sorts qvals and collapses runs whose consecutive gap is at most
// 1.1*binSize into (low,high) extents, leaving isolated values as singles.
// +Inf values never merge with anything and always remain singles.
func compress(qvals []float64, binSize float64) (singles []float64, extents [][2]float64) {
	sort.Float64s(qvals)
	i := 0
	for i < len(qvals) {
		j := i
		for j+1 < len(qvals) &&
			!math.IsInf(qvals[j], 1) && !math.IsInf(qvals[j+1], 1) &&
			qvals[j+1]-qvals[j] <= 1.1*binSize {
			j++
		}
		if j > i {
			extents = append(extents, [2]float64{qvals[i], qvals[j]})
		} else {
			singles = append(singles, qvals[i])
		}
		i = j + 1
	}
	return singles, extents
}
