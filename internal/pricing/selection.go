package pricing

// Selector tracks an in-progress package/addon selection and enforces the
// bundle compatibility and addon eligibility rules in front of the engine.
// It owns no money math: the resulting Selection is handed to ComputeTotals.
type Selector struct {
	cfg      Config
	packages []string
	addons   []string
}

// NewSelector starts an empty selection against the given catalog snapshot.
func NewSelector(cfg Config) *Selector {
	return &Selector{cfg: cfg}
}

// TogglePackage adds or removes the package with the given id. Adding a
// package that is incompatible with any member of the current bundle evicts
// the entire bundle and replaces it with the single new package. Unknown ids
// are ignored.
func (s *Selector) TogglePackage(id string) {
	pkg, ok := s.cfg.FindPackage(id)
	if !ok {
		return
	}
	if idx := indexOf(s.packages, id); idx >= 0 {
		s.packages = append(s.packages[:idx], s.packages[idx+1:]...)
		s.pruneAddons()
		return
	}
	for _, selectedID := range s.packages {
		selected, ok := s.cfg.FindPackage(selectedID)
		if !ok || !Compatible(selected, pkg) {
			s.packages = []string{id}
			s.pruneAddons()
			return
		}
	}
	s.packages = append(s.packages, id)
	s.pruneAddons()
}

// ToggleAddon adds or removes an addon. Ineligible or unknown addons are
// ignored.
func (s *Selector) ToggleAddon(id string) {
	if idx := indexOf(s.addons, id); idx >= 0 {
		s.addons = append(s.addons[:idx], s.addons[idx+1:]...)
		return
	}
	addon, ok := s.cfg.FindAddon(id)
	if !ok || !s.eligible(addon) {
		return
	}
	s.addons = append(s.addons, id)
}

// PackageIDs returns the currently selected package ids in selection order.
func (s *Selector) PackageIDs() []string {
	return append([]string(nil), s.packages...)
}

// AddonIDs returns the currently selected addon ids in selection order.
func (s *Selector) AddonIDs() []string {
	return append([]string(nil), s.addons...)
}

// Selection materializes the current state for the engine.
func (s *Selector) Selection(contractTermID string) Selection {
	return Selection{
		PackageIDs:     s.PackageIDs(),
		AddonIDs:       s.AddonIDs(),
		ContractTermID: contractTermID,
	}
}

// Compatible reports whether two packages may coexist in a bundle. The
// declaration is directional in the catalog, so the union of both directions
// is honored.
func Compatible(a, b Package) bool {
	if a.ID == b.ID {
		return true
	}
	return indexOf(a.BundleWith, b.ID) >= 0 || indexOf(b.BundleWith, a.ID) >= 0
}

func (s *Selector) eligible(a Addon) bool {
	if a.RequiresAnyPackage && len(s.packages) == 0 {
		return false
	}
	if a.RequiresNonAIPackage && s.hasAIPackage() {
		return false
	}
	return true
}

func (s *Selector) hasAIPackage() bool {
	for _, id := range s.packages {
		if pkg, ok := s.cfg.FindPackage(id); ok && pkg.HasAI {
			return true
		}
	}
	return false
}

// pruneAddons drops addons whose eligibility predicate no longer holds after
// a package change.
func (s *Selector) pruneAddons() {
	kept := s.addons[:0]
	for _, id := range s.addons {
		addon, ok := s.cfg.FindAddon(id)
		if ok && s.eligible(addon) {
			kept = append(kept, id)
		}
	}
	s.addons = kept
}

func indexOf(list []string, value string) int {
	for i, v := range list {
		if v == value {
			return i
		}
	}
	return -1
}
