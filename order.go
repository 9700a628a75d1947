package taskflow

import (
	"fmt"
	"strings"
)

// orderNode — узел графа зависимостей шагов.
type orderNode struct {
	name       string
	inDegree   int
	dependsOn  []*orderNode
	dependents []*orderNode
}

// computeOrder строит порядок выполнения шагов.
//
// Если ни один шаг не объявляет зависимостей, порядок совпадает с
// порядком деклараций. Иначе выполняется топологическая сортировка
// (алгоритм Кана); равноправные шаги идут в порядке деклараций, чтобы
// порядок был детерминированным между запусками.
func computeOrder(steps []*step) ([]string, error) {
	plain := true
	for _, s := range steps {
		if len(s.dependsOn) > 0 {
			plain = false
			break
		}
	}
	if plain {
		order := make([]string, len(steps))
		for i, s := range steps {
			order[i] = s.name
		}
		return order, nil
	}

	// Первый проход: узлы.
	nodes := make(map[string]*orderNode, len(steps))
	declared := make([]*orderNode, 0, len(steps))
	for _, s := range steps {
		n := &orderNode{name: s.name}
		nodes[s.name] = n
		declared = append(declared, n)
	}

	// Второй проход: рёбра dep → step.
	for _, s := range steps {
		to := nodes[s.name]
		for _, dep := range s.dependsOn {
			from, ok := nodes[dep]
			if !ok {
				return nil, newDeclarationError("step", s.name,
					fmt.Sprintf("step %q depends on unknown step %q", s.name, dep), ErrUnknownDependency)
			}
			addEdge(from, to)
		}
	}

	// Сортировка Кана; очередь пополняется в порядке деклараций.
	inDegree := make(map[string]int, len(nodes))
	queue := make([]*orderNode, 0, len(nodes))
	for _, n := range declared {
		inDegree[n.name] = n.inDegree
		if n.inDegree == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n.name)

		for _, dep := range n.dependents {
			inDegree[dep.name]--
			if inDegree[dep.name] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(nodes) {
		cycle := findCycle(declared, inDegree)
		return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(cycle, " -> "))
	}
	return order, nil
}

// addEdge добавляет ребро from → to, пропуская дубликаты, чтобы не
// учитывать зависимость дважды.
func addEdge(from, to *orderNode) {
	for _, dep := range to.dependsOn {
		if dep.name == from.name {
			return
		}
	}
	from.dependents = append(from.dependents, to)
	to.dependsOn = append(to.dependsOn, from)
	to.inDegree++
}

// findCycle находит цикл среди узлов, не вошедших в порядок, обходом
// в глубину. Возвращает имена шагов цикла с замыканием на первый:
// ["a", "b", "a"].
func findCycle(declared []*orderNode, inDegree map[string]int) []string {
	// После сортировки Кана цикл состоит только из узлов
	// с ненулевой остаточной степенью.
	inCycle := func(n *orderNode) bool { return inDegree[n.name] > 0 }

	var (
		visited = make(map[string]bool)
		stack   []string
		onStack = make(map[string]int)
		found   []string
	)

	var dfs func(n *orderNode) bool
	dfs = func(n *orderNode) bool {
		if pos, ok := onStack[n.name]; ok {
			found = append(append([]string{}, stack[pos:]...), n.name)
			return true
		}
		if visited[n.name] {
			return false
		}
		visited[n.name] = true
		onStack[n.name] = len(stack)
		stack = append(stack, n.name)

		for _, dep := range n.dependents {
			if inCycle(dep) && dfs(dep) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, n.name)
		return false
	}

	for _, n := range declared {
		if inCycle(n) && dfs(n) {
			return found
		}
	}
	return nil
}
