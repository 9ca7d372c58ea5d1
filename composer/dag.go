package composer

import "github.com/composite-rt/composite/errors"

// checkAcyclic verifies the wiring graph (consumer -> provider edges)
// has no cycle, per spec step 3. Reports the first cycle found as a
// stable module-name path.
func checkAcyclic(modules []NamedModule, wires []Wire) error {
	edges := make(map[string][]string, len(modules))
	for _, w := range wires {
		edges[w.Consumer] = append(edges[w.Consumer], w.Provider)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(modules))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			cyclePath := append(append([]string{}, path...), name)
			return errors.Cycle(errors.PhaseCompose, cyclePath)
		}
		state[name] = visiting
		path = append(path, name)
		for _, next := range edges[name] {
			if err := visit(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, m := range modules {
		if err := visit(m.Name); err != nil {
			return err
		}
	}
	return nil
}
