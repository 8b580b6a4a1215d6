package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/FlavioCFOliveira/QNeuron/internal/errs"
)

// BondOrder is the multiplicity of a bond.
type BondOrder int

const (
	BondSingle BondOrder = iota + 1
	BondDouble
	BondTriple
	BondQuadruple
	BondAromatic
)

func (b BondOrder) String() string {
	switch b {
	case BondSingle:
		return "single"
	case BondDouble:
		return "double"
	case BondTriple:
		return "triple"
	case BondQuadruple:
		return "quadruple"
	case BondAromatic:
		return "aromatic"
	}
	return fmt.Sprintf("BondOrder(%d)", int(b))
}

// valence contribution used by the implicit hydrogen model.
func (b BondOrder) valence() int {
	switch b {
	case BondDouble:
		return 2
	case BondTriple:
		return 3
	case BondQuadruple:
		return 4
	}
	return 1
}

// Atom is one explicit atom of a molecule.
type Atom struct {
	Symbol    string // element symbol with standard capitalization, or "*"
	Aromatic  bool
	Bracket   bool   // written as [..]
	Isotope   int    // 0 when unspecified
	Charge    int    // formal charge
	HCount    int    // hydrogens written inside the bracket
	Chirality string // "@", "@@", "@TH1", ... or empty
	Class     int    // atom class after ':' in a bracket atom
	Component int    // index of the dot-separated fragment
}

// Bond joins two atoms by index.
type Bond struct {
	Begin, End int
	Order      BondOrder
	// Direction is '/' or '\' for directional single bonds, 0 otherwise.
	Direction byte
	Ring      bool // created by a ring-closure digit
}

// Molecule is the graph described by a SMILES string. Only explicit atoms
// are stored; implicit hydrogens are derived on demand.
type Molecule struct {
	SMILES string
	Atoms  []Atom
	Bonds  []Bond

	branches   int
	components int
}

// NumAtoms returns the number of explicit atoms, hydrogens included.
func (m *Molecule) NumAtoms() int { return len(m.Atoms) }

// NumBonds returns the number of bonds.
func (m *Molecule) NumBonds() int { return len(m.Bonds) }

// NumHeavyAtoms counts atoms that are neither hydrogen nor a wildcard.
func (m *Molecule) NumHeavyAtoms() int {
	n := 0
	for _, a := range m.Atoms {
		if a.Symbol != "H" && a.Symbol != "*" {
			n++
		}
	}
	return n
}

// NumRings returns the number of ring-closure bonds.
func (m *Molecule) NumRings() int {
	n := 0
	for _, b := range m.Bonds {
		if b.Ring {
			n++
		}
	}
	return n
}

// NumBranches returns the number of parenthesized branches.
func (m *Molecule) NumBranches() int { return m.branches }

// NumComponents returns the number of dot-separated fragments.
func (m *Molecule) NumComponents() int { return m.components }

// Neighbors returns the indices of the atoms bonded to atom i.
func (m *Molecule) Neighbors(i int) []int {
	var out []int
	for _, b := range m.Bonds {
		switch i {
		case b.Begin:
			out = append(out, b.End)
		case b.End:
			out = append(out, b.Begin)
		}
	}
	return out
}

// ImplicitHydrogens returns the hydrogens implied on atom i. Bracket atoms
// carry none; organic-subset atoms are filled up to their lowest standard
// valence that accommodates their bonds.
func (m *Molecule) ImplicitHydrogens(i int) int {
	a := m.Atoms[i]
	if a.Bracket {
		return 0
	}
	valences := organicValences[a.Symbol]
	if len(valences) == 0 {
		return 0
	}

	used, aromatic := 0, 0
	for _, b := range m.Bonds {
		if b.Begin != i && b.End != i {
			continue
		}
		if b.Order == BondAromatic {
			aromatic++
			continue
		}
		used += b.Order.valence()
	}

	// An aromatic atom gives one electron to the ring system and only uses
	// its lowest valence.
	if a.Aromatic || aromatic > 0 {
		used += aromatic + 1
		return max(valences[0]-used, 0)
	}
	for _, v := range valences {
		if v >= used {
			return v - used
		}
	}
	return 0
}

// Formula returns the molecular formula in Hill order.
func (m *Molecule) Formula() string {
	counts := make(map[string]int)
	for i, a := range m.Atoms {
		if a.Symbol != "*" {
			counts[a.Symbol]++
		}
		if h := a.HCount + m.ImplicitHydrogens(i); h > 0 {
			counts["H"] += h
		}
	}

	symbols := make([]string, 0, len(counts))
	for s := range counts {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool {
		ri, rj := hillRank(symbols[i], counts), hillRank(symbols[j], counts)
		if ri != rj {
			return ri < rj
		}
		return symbols[i] < symbols[j]
	})

	var sb strings.Builder
	for _, s := range symbols {
		sb.WriteString(s)
		if counts[s] > 1 {
			sb.WriteString(strconv.Itoa(counts[s]))
		}
	}
	return sb.String()
}

// hillRank puts carbon then hydrogen first when the formula has carbon.
func hillRank(sym string, counts map[string]int) int {
	if counts["C"] == 0 {
		return 0
	}
	switch sym {
	case "C":
		return 0
	case "H":
		return 1
	}
	return 2
}

// organicValences are the standard valences of the organic subset.
var organicValences = map[string][]int{
	"B": {3}, "C": {4}, "N": {3, 5}, "O": {2}, "P": {3, 5}, "S": {2, 4, 6},
	"F": {1}, "Cl": {1}, "Br": {1}, "I": {1},
}

var elements = func() map[string]bool {
	m := make(map[string]bool)
	for _, s := range strings.Fields(`
		H He Li Be B C N O F Ne Na Mg Al Si P S Cl Ar K Ca Sc Ti V Cr Mn Fe Co
		Ni Cu Zn Ga Ge As Se Br Kr Rb Sr Y Zr Nb Mo Tc Ru Rh Pd Ag Cd In Sn Sb
		Te I Xe Cs Ba La Ce Pr Nd Pm Sm Eu Gd Tb Dy Ho Er Tm Yb Lu Hf Ta W Re Os
		Ir Pt Au Hg Tl Pb Bi Po At Rn Fr Ra Ac Th Pa U Np Pu Am Cm Bk Cf Es Fm
		Md No Lr Rf Db Sg Bh Hs Mt Ds Rg Cn Nh Fl Mc Lv Ts Og`) {
		m[s] = true
	}
	return m
}()

var chiralClasses = map[string]bool{"TH": true, "AL": true, "SP": true, "TB": true, "OH": true}

// aromaticBracket lists the lowercase symbols allowed inside brackets.
var aromaticBracket = map[string]bool{
	"b": true, "c": true, "n": true, "o": true, "p": true, "s": true,
	"se": true, "as": true, "te": true,
}

type ringBond struct {
	atom  int
	order BondOrder
	dir   byte
}

type parser struct {
	src  string
	pos  int
	mol  *Molecule
	prev int

	pending    BondOrder
	pendingDir byte
	branches   []int
	rings      map[int]ringBond
	afterDot   bool
}

// ParseSMILES parses a SMILES string into a molecule graph. Errors wrap
// errs.ErrInvalidSMILES and name the offending position.
func ParseSMILES(smiles string) (*Molecule, error) {
	p := &parser{
		src:   smiles,
		mol:   &Molecule{SMILES: smiles},
		prev:  -1,
		rings: make(map[int]ringBond),
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.mol, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w %q at %d: %s", errs.ErrInvalidSMILES, p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) parse() error {
	if strings.TrimSpace(p.src) == "" {
		return p.errorf("empty string")
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return p.errorf("branch without a preceding atom")
			}
			if p.pending != 0 {
				return p.errorf("bond before branch")
			}
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == ')' {
				return p.errorf("empty branch")
			}
			p.branches = append(p.branches, p.prev)
			p.mol.branches++
			p.pos++
		case c == ')':
			if len(p.branches) == 0 {
				return p.errorf("unbalanced ')'")
			}
			if p.pending != 0 {
				return p.errorf("bond without a following atom")
			}
			p.prev = p.branches[len(p.branches)-1]
			p.branches = p.branches[:len(p.branches)-1]
			p.pos++
		case strings.IndexByte("-=#$:/\\", c) >= 0:
			if p.prev < 0 {
				return p.errorf("bond without a preceding atom")
			}
			if p.pending != 0 {
				return p.errorf("consecutive bonds")
			}
			p.pending, p.pendingDir = bondOf(c)
			p.pos++
		case c == '.':
			if p.prev < 0 || p.pending != 0 {
				return p.errorf("misplaced '.'")
			}
			if len(p.branches) > 0 {
				return p.errorf("'.' inside a branch")
			}
			p.prev = -1
			p.afterDot = true
			p.pos++
		case c == '%' || (c >= '0' && c <= '9'):
			if err := p.ringClosure(); err != nil {
				return err
			}
		case c == '[':
			a, err := p.bracketAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(a); err != nil {
				return err
			}
		default:
			a, err := p.organicAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(a); err != nil {
				return err
			}
		}
	}

	switch {
	case p.pending != 0:
		return p.errorf("trailing bond")
	case p.afterDot:
		return p.errorf("trailing '.'")
	case len(p.branches) > 0:
		return p.errorf("unclosed branch")
	case len(p.rings) > 0:
		open := make([]int, 0, len(p.rings))
		for n := range p.rings {
			open = append(open, n)
		}
		sort.Ints(open)
		return p.errorf("unclosed ring %d", open[0])
	}
	return nil
}

func bondOf(c byte) (BondOrder, byte) {
	switch c {
	case '=':
		return BondDouble, 0
	case '#':
		return BondTriple, 0
	case '$':
		return BondQuadruple, 0
	case ':':
		return BondAromatic, 0
	case '/', '\\':
		return BondSingle, c
	}
	return BondSingle, 0
}

// implicitOrder is the order of an unwritten bond between atoms i and j.
func (p *parser) implicitOrder(i, j int) BondOrder {
	if p.mol.Atoms[i].Aromatic && p.mol.Atoms[j].Aromatic {
		return BondAromatic
	}
	return BondSingle
}

func (p *parser) addAtom(a Atom) error {
	idx := len(p.mol.Atoms)
	if p.prev < 0 {
		a.Component = p.mol.components
		p.mol.components++
	} else {
		a.Component = p.mol.Atoms[p.prev].Component
	}
	p.mol.Atoms = append(p.mol.Atoms, a)

	if p.prev >= 0 {
		order := p.pending
		if order == 0 {
			order = p.implicitOrder(p.prev, idx)
		}
		p.mol.Bonds = append(p.mol.Bonds, Bond{Begin: p.prev, End: idx, Order: order, Direction: p.pendingDir})
	}
	p.prev = idx
	p.pending, p.pendingDir = 0, 0
	p.afterDot = false
	return nil
}

func (p *parser) ringClosure() error {
	if p.prev < 0 {
		return p.errorf("ring closure without a preceding atom")
	}
	var n int
	if p.src[p.pos] == '%' {
		if p.pos+2 >= len(p.src) || !isDigit(p.src[p.pos+1]) || !isDigit(p.src[p.pos+2]) {
			return p.errorf("'%%' must be followed by two digits")
		}
		n = int(p.src[p.pos+1]-'0')*10 + int(p.src[p.pos+2]-'0')
		p.pos += 3
	} else {
		n = int(p.src[p.pos] - '0')
		p.pos++
	}

	open, ok := p.rings[n]
	if !ok {
		p.rings[n] = ringBond{atom: p.prev, order: p.pending, dir: p.pendingDir}
		p.pending, p.pendingDir = 0, 0
		return nil
	}
	delete(p.rings, n)

	if open.atom == p.prev {
		return p.errorf("ring %d closes on its own atom", n)
	}
	order, dir := open.order, open.dir
	switch {
	case order == 0:
		order, dir = p.pending, p.pendingDir
	case p.pending != 0 && p.pending != order:
		return p.errorf("conflicting bond orders on ring %d", n)
	}
	if order == 0 {
		order = p.implicitOrder(open.atom, p.prev)
	}
	for _, b := range p.mol.Bonds {
		if (b.Begin == open.atom && b.End == p.prev) || (b.Begin == p.prev && b.End == open.atom) {
			return p.errorf("ring %d duplicates an existing bond", n)
		}
	}
	p.mol.Bonds = append(p.mol.Bonds, Bond{Begin: open.atom, End: p.prev, Order: order, Direction: dir, Ring: true})
	p.pending, p.pendingDir = 0, 0
	return nil
}

func (p *parser) organicAtom() (Atom, error) {
	s := p.src[p.pos:]
	switch {
	case strings.HasPrefix(s, "Cl"), strings.HasPrefix(s, "Br"):
		p.pos += 2
		return Atom{Symbol: s[:2]}, nil
	case s[0] == '*':
		p.pos++
		return Atom{Symbol: "*"}, nil
	case strings.IndexByte("BCNOPSFI", s[0]) >= 0:
		p.pos++
		return Atom{Symbol: s[:1]}, nil
	case strings.IndexByte("bcnops", s[0]) >= 0:
		p.pos++
		return Atom{Symbol: strings.ToUpper(s[:1]), Aromatic: true}, nil
	}
	return Atom{}, p.errorf("unexpected character %q", s[0])
}

func (p *parser) bracketAtom() (Atom, error) {
	start := p.pos
	end := strings.IndexByte(p.src[start:], ']')
	if end < 0 {
		return Atom{}, p.errorf("unterminated bracket atom")
	}
	body := p.src[start+1 : start+end]
	p.pos = start + end + 1

	a := Atom{Bracket: true}
	i := 0
	num := func() (int, bool) {
		j := i
		for j < len(body) && isDigit(body[j]) {
			j++
		}
		if j == i {
			return 0, false
		}
		v, _ := strconv.Atoi(body[i:j])
		i = j
		return v, true
	}

	if v, ok := num(); ok {
		a.Isotope = v
	}

	sym, aromatic, ok := bracketSymbol(body[i:])
	if !ok {
		return Atom{}, fmt.Errorf("%w %q at %d: unknown element in [%s]", errs.ErrInvalidSMILES, p.src, start, body)
	}
	i += len(sym)
	a.Aromatic = aromatic
	a.Symbol = sym
	if aromatic {
		a.Symbol = strings.ToUpper(sym[:1]) + sym[1:]
	}

	if i < len(body) && body[i] == '@' {
		j := i + 1
		switch {
		case j < len(body) && body[j] == '@':
			j++
		case j+1 < len(body) && chiralClasses[body[j:j+2]]:
			j += 2
			for j < len(body) && isDigit(body[j]) {
				j++
			}
		}
		a.Chirality = body[i:j]
		i = j
	}

	if i < len(body) && body[i] == 'H' {
		i++
		a.HCount = 1
		if v, ok := num(); ok {
			a.HCount = v
		}
	}

	if i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		c := body[i]
		i++
		if v, ok := num(); ok {
			a.Charge = sign * v
		} else {
			a.Charge = sign
			for i < len(body) && body[i] == c {
				a.Charge += sign
				i++
			}
		}
	}

	if i < len(body) && body[i] == ':' {
		i++
		v, ok := num()
		if !ok {
			return Atom{}, fmt.Errorf("%w %q at %d: atom class needs digits", errs.ErrInvalidSMILES, p.src, start)
		}
		a.Class = v
	}

	if i != len(body) {
		return Atom{}, fmt.Errorf("%w %q at %d: unexpected %q in [%s]", errs.ErrInvalidSMILES, p.src, start, body[i:], body)
	}
	return a, nil
}

// bracketSymbol reads the longest element or aromatic symbol at the start of s.
func bracketSymbol(s string) (sym string, aromatic, ok bool) {
	if s == "" {
		return "", false, false
	}
	if s[0] == '*' {
		return "*", false, true
	}
	if len(s) >= 2 && aromaticBracket[s[:2]] {
		return s[:2], true, true
	}
	if aromaticBracket[s[:1]] {
		return s[:1], true, true
	}
	if len(s) >= 2 && s[1] >= 'a' && s[1] <= 'z' && elements[s[:2]] {
		return s[:2], false, true
	}
	if elements[s[:1]] {
		return s[:1], false, true
	}
	return "", false, false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
