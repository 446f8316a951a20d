package mempool

import (
	"errors"
	"testing"

	"github.com/rawblock/mempool-engine/pkg/models"
)

func mkTx(id string, vsize int, parents ...string) *models.Transaction {
	tx := &models.Transaction{
		Txid:    id,
		Vsize:   vsize,
		Outputs: []models.TxOut{{Value: 10000}},
	}
	for _, p := range parents {
		tx.Inputs = append(tx.Inputs, models.TxIn{Txid: p, Vout: 0})
	}
	if len(parents) == 0 {
		tx.Inputs = []models.TxIn{{Txid: "coinbase-ancestor-" + id, Vout: 0}}
	}
	return tx
}

func mustAdd(t *testing.T, p *Pool, tx *models.Transaction, fee int64) {
	t.Helper()
	if err := p.Add(tx, fee, 1000, 1, true); err != nil {
		t.Fatalf("Add(%s) failed: %v", tx.Txid, err)
	}
}

// S1: ancestor chain admission gate.
func TestAncestorChainLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAncestors = 3
	p := New(cfg, nil)

	a := mkTx("A", 200)
	b := mkTx("B", 200, "A")
	c := mkTx("C", 200, "B")
	d := mkTx("D", 200, "C")

	mustAdd(t, p, a, 100)
	mustAdd(t, p, b, 100)
	mustAdd(t, p, c, 100)

	err := p.Add(d, 100, 1000, 1, true)
	if err == nil {
		t.Fatalf("expected too-many-ancestors failure admitting D")
	}
	if !errors.Is(err, ErrTooManyAncestors) {
		t.Fatalf("expected ErrTooManyAncestors, got %v", err)
	}
	if got := p.Get("D"); got != nil {
		t.Fatalf("D should be absent after failed admission")
	}

	p.mu.Lock()
	ae, _ := p.index.find("A")
	if ae.DescCount != 3 {
		t.Fatalf("A.desc_count = %d, want 3", ae.DescCount)
	}
	p.mu.Unlock()
}

// S2: fanout descendant limit.
func TestDescendantFanoutLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDescendants = 25
	p := New(cfg, nil)

	parent := mkTx("P", 200)
	parent.Outputs = make([]models.TxOut, 26)
	for i := range parent.Outputs {
		parent.Outputs[i] = models.TxOut{Value: 10000}
	}
	mustAdd(t, p, parent, 100)

	for i := 0; i < 25; i++ {
		child := mkTx(childHash(i), 200, "P")
		child.Inputs[0].Vout = uint32(i)
		mustAdd(t, p, child, 100)
	}

	extra := mkTx("child-extra", 200, "P")
	extra.Inputs[0].Vout = 25
	err := p.Add(extra, 100, 1000, 1, true)
	if err == nil {
		t.Fatalf("expected too-many-descendants-for failure")
	}
	var admErr *AdmissionError
	if !errors.As(err, &admErr) || admErr.Kind != TooManyDescendantsFor || admErr.Hash != "P" {
		t.Fatalf("expected too-many-descendants-for(P), got %v", err)
	}

	p.mu.Lock()
	pe, _ := p.index.find("P")
	if pe.DescCount != 26 {
		t.Fatalf("P.desc_count = %d, want 26", pe.DescCount)
	}
	p.mu.Unlock()
}

func childHash(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}

// S3: prioritize propagation.
func TestPrioritizePropagation(t *testing.T) {
	p := New(DefaultConfig(), nil)

	a := mkTx("A", 200)
	b := mkTx("B", 200, "A")
	c := mkTx("C", 200, "B")
	mustAdd(t, p, a, 100)
	mustAdd(t, p, b, 100)
	mustAdd(t, p, c, 100)

	p.Prioritise("B", 500)

	p.mu.Lock()
	defer p.mu.Unlock()
	ae, _ := p.index.find("A")
	be, _ := p.index.find("B")
	ce, _ := p.index.find("C")

	if ae.DescModFee != 800 {
		t.Errorf("A.desc_mod_fee = %d, want 800", ae.DescModFee)
	}
	if ce.AncModFee != 800 {
		t.Errorf("C.anc_mod_fee = %d, want 800", ce.AncModFee)
	}
	if be.ModifiedFee() != 600 {
		t.Errorf("B.modified_fee = %d, want 600", be.ModifiedFee())
	}
}

// S6: remove_for_block keeps descendants, drops the parent link, and
// corrects the descendant's ancestor aggregates.
func TestRemoveForBlockKeepsDescendants(t *testing.T) {
	p := New(DefaultConfig(), nil)

	pTx := mkTx("P", 200)
	qTx := mkTx("Q", 200, "P")
	mustAdd(t, p, pTx, 100)
	mustAdd(t, p, qTx, 100)

	p.RemoveForBlock([]*models.Transaction{pTx}, 2)

	if p.Get("P") != nil {
		t.Fatalf("P should be gone after remove_for_block")
	}
	q := p.Get("Q")
	if q == nil {
		t.Fatalf("Q should remain after remove_for_block")
	}

	p.mu.Lock()
	qe, _ := p.index.find("Q")
	if qe.AncCount != 1 {
		t.Errorf("Q.anc_count = %d, want 1", qe.AncCount)
	}
	if _, stillParent := p.parentsOf("Q")["P"]; stillParent {
		t.Errorf("Q should no longer list P as a parent")
	}
	// Q still spends P:0 (now a confirmed output), so the spender map
	// must keep that entry pointing at Q; P's own inputs are what get
	// erased with P.
	if spender, ok := p.outpointSpender[models.Outpoint{Hash: "P", Index: 0}]; !ok || spender != "Q" {
		t.Errorf("outpoint P:0 should still map to its remaining spender Q, got %q (present=%v)", spender, ok)
	}
	if _, ok := p.outpointSpender[pTx.Prevout(0)]; ok {
		t.Errorf("removed entry P's own input should no longer be in the spender map")
	}
	p.mu.Unlock()

	p.Check(nil)
}

// remove_recursive must remove a tx and every in-pool descendant that
// spends its outputs, and round-trip back to the pre-add state for an
// unrelated remaining entry.
func TestRemoveRecursiveRoundTrip(t *testing.T) {
	p := New(DefaultConfig(), nil)

	unrelated := mkTx("U", 200)
	mustAdd(t, p, unrelated, 100)

	a := mkTx("A2", 200)
	b := mkTx("B2", 200, "A2")
	mustAdd(t, p, a, 100)
	mustAdd(t, p, b, 100)

	p.RemoveRecursive(a, ReasonUnknown)

	if p.Get("A2") != nil || p.Get("B2") != nil {
		t.Fatalf("both A2 and B2 should be gone after remove_recursive")
	}

	p.mu.Lock()
	ue, _ := p.index.find("U")
	if ue.DescCount != 1 || ue.AncCount != 1 {
		t.Errorf("unrelated entry U's aggregates changed: desc=%d anc=%d", ue.DescCount, ue.AncCount)
	}
	p.mu.Unlock()

	p.Check(nil)
}

// Eviction monotonicity: trim_to_size never increases memory usage and
// leaves usage at or below the limit (or the pool empty), and prefers
// evicting the cheapest package over a newly-added expensive one.
func TestTrimToSizeEvictsWorstFirst(t *testing.T) {
	p := New(DefaultConfig(), nil)

	for i := 0; i < 5; i++ {
		mustAdd(t, p, mkTx(childHash(i), 1000), 1000) // feerate 1 sat/vB
	}
	rich := mkTx("rich", 1000)
	mustAdd(t, p, rich, 10000) // feerate 10 sat/vB, no children

	before := p.DynamicMemoryUsage()
	limit := before - 1500

	p.TrimToSize(limit)

	if p.Get("rich") == nil {
		t.Fatalf("the highest-feerate entry should not have been evicted")
	}
	after := p.DynamicMemoryUsage()
	if after > before {
		t.Fatalf("trim_to_size increased memory usage: %d -> %d", before, after)
	}
	if after > limit && p.Count() != 0 {
		t.Fatalf("trim_to_size left usage %d above limit %d with a nonempty pool", after, limit)
	}
}

// Round-trip idempotence.
func TestAddRemoveRoundTrip(t *testing.T) {
	p := New(DefaultConfig(), nil)
	other := mkTx("kept", 200)
	mustAdd(t, p, other, 500)

	before := p.Get("kept")
	beforeInfo := p.Info("kept")

	candidate := mkTx("transient", 200)
	mustAdd(t, p, candidate, 500)
	p.RemoveRecursive(candidate, ReasonUnknown)

	if got := p.Get("kept"); got != before {
		t.Fatalf("unrelated entry's tx pointer changed across add/remove round-trip")
	}
	if got := p.Info("kept"); got != beforeInfo {
		t.Fatalf("unrelated entry's info changed across add/remove round-trip: %+v vs %+v", got, beforeInfo)
	}
	if p.Get("transient") != nil {
		t.Fatalf("transient entry should be gone")
	}
}

// S5: remove_for_reorg drops every entry that fails finalCheck together
// with its full descendant closure, leaving unrelated entries intact.
func TestRemoveForReorgDropsFailedEntryAndDescendants(t *testing.T) {
	p := New(DefaultConfig(), nil)

	a := mkTx("RA", 200)
	b := mkTx("RB", 200, "RA")
	c := mkTx("RC", 200, "RB")
	mustAdd(t, p, a, 100)
	mustAdd(t, p, b, 100)
	mustAdd(t, p, c, 100)

	unrelated := mkTx("RU", 200)
	mustAdd(t, p, unrelated, 100)

	finalCheck := func(e *Entry) bool {
		return e.Hash != "RA"
	}

	p.RemoveForReorg(nil, 100, finalCheck, nil)

	if p.Get("RA") != nil || p.Get("RB") != nil || p.Get("RC") != nil {
		t.Fatalf("RA and its descendant closure should be gone after remove_for_reorg")
	}
	if p.Get("RU") == nil {
		t.Fatalf("unrelated entry should remain after remove_for_reorg")
	}
}

type stubCoinView map[models.Outpoint]Coin

func (v stubCoinView) GetCoin(o models.Outpoint) (Coin, bool) {
	c, ok := v[o]
	return c, ok
}

// S5: a coinbase-spender whose coinbase is younger than maturity under
// the new tip is purged together with its descendants; a mature
// coinbase-spender and entries whose only suspect input is an in-pool
// parent stay, and unrelated aggregates are untouched.
func TestRemoveForReorgPurgesImmatureCoinbaseSpender(t *testing.T) {
	p := New(DefaultConfig(), nil)

	x := mkTx("X", 200)
	x.SpendsCoinbase = true
	y := mkTx("Y", 200, "X")
	mature := mkTx("M", 200)
	mature.SpendsCoinbase = true
	parent := mkTx("P3", 200)
	childOfInPool := mkTx("C3", 200, "P3")
	childOfInPool.SpendsCoinbase = true // coinbase inherited through P3; its own input is in-pool

	mustAdd(t, p, x, 100)
	mustAdd(t, p, y, 100)
	mustAdd(t, p, mature, 100)
	mustAdd(t, p, parent, 100)
	mustAdd(t, p, childOfInPool, 100)

	view := stubCoinView{
		x.Prevout(0):      {IsCoinbase: true, Height: 60},
		mature.Prevout(0): {IsCoinbase: true, Height: 1},
	}
	maturityCheck := func(coin Coin, height int32) bool {
		return !coin.IsCoinbase || height-coin.Height+1 >= 100
	}

	p.RemoveForReorg(view, 100, func(e *Entry) bool { return true }, maturityCheck)

	if p.Get("X") != nil || p.Get("Y") != nil {
		t.Fatalf("immature coinbase-spender X and its descendant Y should be gone")
	}
	if p.Get("M") == nil {
		t.Fatalf("mature coinbase-spender should remain")
	}
	if p.Get("C3") == nil {
		t.Fatalf("entry whose suspect input is an in-pool parent should remain")
	}

	p.mu.Lock()
	pe, _ := p.index.find("P3")
	if pe.DescCount != 2 {
		t.Errorf("P3.desc_count = %d, want 2", pe.DescCount)
	}
	p.mu.Unlock()
}

// remove_for_reorg must leave the pool untouched when every entry
// passes finalCheck and none of them spend a coinbase.
func TestRemoveForReorgNoopWhenAllEntriesPass(t *testing.T) {
	p := New(DefaultConfig(), nil)

	a := mkTx("SA", 200)
	b := mkTx("SB", 200, "SA")
	mustAdd(t, p, a, 100)
	mustAdd(t, p, b, 100)

	p.RemoveForReorg(nil, 100, func(e *Entry) bool { return true }, nil)

	if p.Get("SA") == nil || p.Get("SB") == nil {
		t.Fatalf("remove_for_reorg should not remove entries that pass finalCheck")
	}
}

// S4 (second half): trim_to_size raises the rolling minimum feerate to
// at least the evicted package's feerate, so a later admission at a
// lower feerate than what was just evicted can be rejected by policy.
func TestTrimToSizeRaisesMinFee(t *testing.T) {
	p := New(DefaultConfig(), nil)

	for i := 0; i < 5; i++ {
		mustAdd(t, p, mkTx(childHash(i), 1000), 1000) // feerate 1 sat/vB
	}
	rich := mkTx("rich2", 1000)
	mustAdd(t, p, rich, 10000) // feerate 10 sat/vB, no children

	if before := p.GetMinFee(0); before != 0 {
		t.Fatalf("GetMinFee before any eviction = %d, want 0", before)
	}

	before := p.DynamicMemoryUsage()
	p.TrimToSize(before - 1500)

	if got := p.GetMinFee(0); got <= 1 {
		t.Fatalf("GetMinFee after trim_to_size = %d, want > 1 sat/vB (the evicted feerate plus incremental relay fee)", got)
	}
}

func TestCheckPassesOnHealthyPool(t *testing.T) {
	p := New(DefaultConfig(), nil)
	a := mkTx("CA", 200)
	b := mkTx("CB", 200, "CA")
	mustAdd(t, p, a, 100)
	mustAdd(t, p, b, 100)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Check panicked on a healthy pool: %v", r)
		}
	}()
	p.Check(nil)
}

// Expire removes everything older than the cutoff together with the
// full descendant closure, even when a descendant is younger than the
// cutoff itself.
func TestExpireRemovesDescendantClosure(t *testing.T) {
	p := New(DefaultConfig(), nil)

	old := mkTx("old", 200)
	if err := p.Add(old, 100, 500, 1, true); err != nil {
		t.Fatalf("Add(old) failed: %v", err)
	}
	young := mkTx("young", 200, "old")
	if err := p.Add(young, 100, 2000, 1, true); err != nil {
		t.Fatalf("Add(young) failed: %v", err)
	}
	fresh := mkTx("fresh", 200)
	if err := p.Add(fresh, 100, 2000, 1, true); err != nil {
		t.Fatalf("Add(fresh) failed: %v", err)
	}

	removed := p.Expire(1000)

	if removed != 2 {
		t.Errorf("Expire removed %d entries, want 2 (the stale parent plus its young descendant)", removed)
	}
	if p.Get("old") != nil || p.Get("young") != nil {
		t.Errorf("stale entry and its descendant should both be gone")
	}
	if p.Get("fresh") == nil {
		t.Errorf("entry newer than the cutoff should remain")
	}

	p.Check(nil)
}

// Property: two prioritise calls leave the same state as one call with
// the summed delta.
func TestPrioritizeCommutativity(t *testing.T) {
	build := func() *Pool {
		p := New(DefaultConfig(), nil)
		mustAdd(t, p, mkTx("PA", 200), 100)
		mustAdd(t, p, mkTx("PB", 200, "PA"), 100)
		return p
	}

	split := build()
	split.Prioritise("PB", 300)
	split.Prioritise("PB", 200)

	single := build()
	single.Prioritise("PB", 500)

	split.mu.Lock()
	single.mu.Lock()
	defer split.mu.Unlock()
	defer single.mu.Unlock()
	for _, hash := range []string{"PA", "PB"} {
		a, _ := split.index.find(hash)
		b, _ := single.index.find(hash)
		if a.ModifiedFee() != b.ModifiedFee() || a.DescModFee != b.DescModFee || a.AncModFee != b.AncModFee {
			t.Errorf("%s diverged: split {mod=%d desc=%d anc=%d} vs single {mod=%d desc=%d anc=%d}",
				hash, a.ModifiedFee(), a.DescModFee, a.AncModFee, b.ModifiedFee(), b.DescModFee, b.AncModFee)
		}
	}
}

// ClearPrioritization only forgets the standing delta for future
// admissions; an in-pool entry keeps the FeeDelta it was prioritised
// with and no aggregates move.
func TestClearPrioritizationLeavesPoolEntryUntouched(t *testing.T) {
	p := New(DefaultConfig(), nil)
	mustAdd(t, p, mkTx("QA", 200), 100)
	mustAdd(t, p, mkTx("QB", 200, "QA"), 100)

	p.Prioritise("QB", 400)
	p.ClearPrioritization("QB")

	p.mu.Lock()
	defer p.mu.Unlock()
	a, _ := p.index.find("QA")
	b, _ := p.index.find("QB")
	if b.ModifiedFee() != 500 || b.FeeDelta != 400 {
		t.Errorf("QB modified fee = %d (delta %d), want 500 with delta 400 still in effect", b.ModifiedFee(), b.FeeDelta)
	}
	if a.DescModFee != 600 {
		t.Errorf("QA.desc_mod_fee = %d, want 600 (the propagated delta stays)", a.DescModFee)
	}
	if _, standing := p.deltas["QB"]; standing {
		t.Errorf("deltas map should no longer hold an entry for QB")
	}
}

// A delta declared before admission must be applied when the tx is
// later admitted, before aggregate propagation.
func TestPreDeclaredDeltaAppliesOnAdmission(t *testing.T) {
	p := New(DefaultConfig(), nil)
	p.Prioritise("late", 900)

	mustAdd(t, p, mkTx("late", 200), 100)

	p.mu.Lock()
	e, _ := p.index.find("late")
	if e.ModifiedFee() != 1000 {
		t.Errorf("modified fee = %d, want 1000 (fee 100 + pre-declared delta 900)", e.ModifiedFee())
	}
	if e.DescModFee != 1000 || e.AncModFee != 1000 {
		t.Errorf("self aggregates = {desc %d, anc %d}, want both 1000", e.DescModFee, e.AncModFee)
	}
	p.mu.Unlock()
}

func TestIsSpentAndHasNoInputsOf(t *testing.T) {
	p := New(DefaultConfig(), nil)
	a := mkTx("IA", 200)
	mustAdd(t, p, a, 100)

	if !p.IsSpent(a.Prevout(0)) {
		t.Errorf("IsSpent should report the admitted entry's input as spent")
	}
	if p.IsSpent(models.Outpoint{Hash: "nope", Index: 0}) {
		t.Errorf("IsSpent should report an unknown outpoint as unspent")
	}

	conflicting := &models.Transaction{
		Txid:    "IB",
		Vsize:   200,
		Inputs:  []models.TxIn{{Txid: a.Inputs[0].Txid, Vout: a.Inputs[0].Vout}},
		Outputs: []models.TxOut{{Value: 1}},
	}
	if p.HasNoInputsOf(conflicting) {
		t.Errorf("HasNoInputsOf should report a conflict for a double-spend of IA's input")
	}
	if !p.HasNoInputsOf(mkTx("IC", 200)) {
		t.Errorf("HasNoInputsOf should pass a tx with unrelated inputs")
	}
}

// query_hashes_sorted: parents (fewer ancestors) come before children,
// and within a depth the richer package sorts first.
// CompareDepthAndScore must agree with the bulk ordering pairwise.
func TestQueryHashesSortedOrdering(t *testing.T) {
	p := New(DefaultConfig(), nil)
	mustAdd(t, p, mkTx("cheap", 200), 100)
	mustAdd(t, p, mkTx("richp", 200), 900)
	mustAdd(t, p, mkTx("child", 200, "richp"), 100)

	hashes := p.QueryHashesSorted()
	if len(hashes) != 3 {
		t.Fatalf("got %d hashes, want 3", len(hashes))
	}
	if hashes[2] != "child" {
		t.Errorf("the only entry with an in-pool ancestor should sort last, got order %v", hashes)
	}
	if hashes[0] != "richp" {
		t.Errorf("the richest root package should sort first, got order %v", hashes)
	}

	for i := 0; i < len(hashes); i++ {
		for j := i + 1; j < len(hashes); j++ {
			if !p.CompareDepthAndScore(hashes[i], hashes[j]) {
				t.Errorf("CompareDepthAndScore(%s, %s) disagrees with QueryHashesSorted order", hashes[i], hashes[j])
			}
		}
	}
}

// remove_conflicts must take out the conflicting package (spender of a
// shared outpoint plus its descendants) and nothing else.
func TestRemoveConflictsRemovesConflictingPackage(t *testing.T) {
	p := New(DefaultConfig(), nil)

	victim := mkTx("V", 200)
	child := mkTx("VC", 200, "V")
	mustAdd(t, p, victim, 100)
	mustAdd(t, p, child, 100)
	bystander := mkTx("BY", 200)
	mustAdd(t, p, bystander, 100)

	replacement := &models.Transaction{
		Txid:    "R",
		Vsize:   200,
		Inputs:  []models.TxIn{{Txid: victim.Inputs[0].Txid, Vout: victim.Inputs[0].Vout}},
		Outputs: []models.TxOut{{Value: 1}},
	}
	p.RemoveConflicts(replacement)

	if p.Get("V") != nil || p.Get("VC") != nil {
		t.Errorf("conflicting package V/VC should be gone")
	}
	if p.Get("BY") == nil {
		t.Errorf("unrelated entry should remain")
	}

	p.Check(nil)
}

// SelectionOrder must hand out candidates best ancestor feerate first,
// with a child's score diluted by its cheap ancestor.
func TestSelectionOrderBestAncestorScoreFirst(t *testing.T) {
	p := New(DefaultConfig(), nil)
	mustAdd(t, p, mkTx("mid", 200), 400)         // 2 sat/vB alone
	mustAdd(t, p, mkTx("cheapp", 200), 100)      // 0.5 sat/vB
	mustAdd(t, p, mkTx("hot", 200, "cheapp"), 900) // 4.5 alone, 2.5 with ancestor

	order := p.SelectionOrder(0)
	if len(order) != 3 {
		t.Fatalf("got %d hashes, want 3", len(order))
	}
	if order[0] != "hot" || order[1] != "mid" || order[2] != "cheapp" {
		t.Errorf("selection order = %v, want [hot mid cheapp]", order)
	}

	if bounded := p.SelectionOrder(2); len(bounded) != 2 || bounded[0] != "hot" {
		t.Errorf("bounded selection = %v, want the best 2", bounded)
	}
}

// A trimmed entry's prevout is only reported when its parent is gone
// from the pool too; an input fed by a surviving in-pool parent stays
// accounted for and must not be handed to cache-purging callers.
func TestTrimToSizeReportsOnlyOrphanedPrevouts(t *testing.T) {
	p := New(DefaultConfig(), nil)

	richParent := mkTx("RP", 1000)
	mustAdd(t, p, richParent, 100000) // 100 sat/vB
	cheapChild := mkTx("RC", 1000, "RP")
	mustAdd(t, p, cheapChild, 100) // 0.1 sat/vB, the worst package

	freed := p.TrimToSize(p.DynamicMemoryUsage() - 500)

	if p.Get("RP") == nil || p.Get("RC") != nil {
		t.Fatalf("trim should evict only the cheap child package")
	}
	for _, o := range freed {
		if o.Hash == "RP" {
			t.Errorf("prevout %v fed by the surviving parent must not be reported as freed", o)
		}
	}
}
