package pack

import "fmt"

// validateMatrix implements spec §4.10 stage 2: every profile must be a
// member of settings.matrix.allowed, and when enforce_profiles_only is
// set, agents may reference only declared profiles, never raw knobs.
func validateMatrix(m Manifest) []Diagnostic {
	var diags []Diagnostic
	allowed := make(map[Tuple]bool, len(m.Settings.Matrix.Allowed))
	for _, t := range m.Settings.Matrix.Allowed {
		allowed[t] = true
	}

	for name, p := range m.Profiles {
		if !allowed[p.tuple()] {
			diags = append(diags, errDiag("cal.toml", "profile %q is not a member of settings.matrix.allowed: %+v", name, p.tuple()))
		}
	}

	for name, a := range m.Agents {
		if m.Settings.Matrix.EnforceProfilesOnly && !a.usesProfile() {
			diags = append(diags, errDiag("cal.toml", "agent %q sets raw knobs but settings.matrix.enforce_profiles_only=true requires a named profile", name))
			continue
		}
		if a.usesProfile() {
			if _, ok := m.Profiles[a.Profile]; !ok {
				diags = append(diags, errDiag("cal.toml", "agent %q references undefined profile %q", name, a.Profile))
			}
			continue
		}
		if !allowed[a.tuple()] {
			diags = append(diags, errDiag("cal.toml", "agent %q knobs are not a member of settings.matrix.allowed: %+v", name, a.tuple()))
		}
	}

	return diags
}

// resolveTuple returns the effective {retention, index, embeddings, format}
// for an agent, expanding its named profile if it uses one.
func resolveTuple(m Manifest, a Agent) (Tuple, error) {
	if a.usesProfile() {
		p, ok := m.Profiles[a.Profile]
		if !ok {
			return Tuple{}, fmt.Errorf("undefined profile %q", a.Profile)
		}
		return p.tuple(), nil
	}
	return a.tuple(), nil
}
