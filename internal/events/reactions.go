package events

import "context"

// Weights: вес каждого типа реакции, которой модератор отмечает сообщение.
type Weights map[string]int

func DefaultWeights() Weights {
	return Weights{"🧩": 1, "🍒": 2, "🚥": 3}
}

// Reaction: реакция на сообщение и кто её поставил.
type Reaction struct {
	Name    string
	UserIDs []int64
}

// Multiplier: сумма весов различных типов реакций, которые поставил хотя бы
// один оценщик. Повтор типа в списке не удваивает вес. Вторым значением
// возвращаются учтённые типы в порядке появления.
func (w Weights) Multiplier(reactions []Reaction, isRater func(userID int64) bool) (int, []string) {
	total := 0
	var counted []string
	seen := make(map[string]bool, len(reactions))
	for _, r := range reactions {
		weight, ok := w[r.Name]
		if !ok || seen[r.Name] {
			continue
		}
		for _, uid := range r.UserIDs {
			if isRater(uid) {
				seen[r.Name] = true
				total += weight
				counted = append(counted, r.Name)
				break
			}
		}
	}
	return total, counted
}

func (w Weights) clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// ReactionSource отдаёт реакции на сообщение (платформа их хранит сама).
type ReactionSource func(ctx context.Context, msg Message) ([]Reaction, error)

// Weights: копия весов, с которыми работает Manager.
func (m *Manager) Weights() Weights { return m.weights.clone() }

// ReactionScorer строит ScoreFunc для StartRescan: multiplier сообщения
// считается по его реакциям и весам Manager.
func (m *Manager) ReactionScorer(reactions ReactionSource, isRater func(userID int64) bool) ScoreFunc {
	return func(ctx context.Context, msg Message) (int, error) {
		rs, err := reactions(ctx, msg)
		if err != nil {
			return 0, err
		}
		mult, _ := m.weights.Multiplier(rs, isRater)
		return mult, nil
	}
}

// ScoreReactions: живой путь оценки. Реакции переводятся в multiplier и
// записываются через SetPoints (0 снимает очко). Возвращает, записано ли
// очко, и учтённые типы реакций, чтобы платформа оставила нужные отметки.
func (m *Manager) ScoreReactions(ctx context.Context, msg Message, reactions []Reaction, isRater func(userID int64) bool) (bool, []string, error) {
	mult, counted := m.weights.Multiplier(reactions, isRater)
	added, err := m.SetPoints(ctx, msg, mult)
	if err != nil {
		return false, nil, err
	}
	return added, counted, nil
}
