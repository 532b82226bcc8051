package business

import "math"

// Rights is the governance standing of one actor over one business.
type Rights struct {
	Share            float64 `json:"share"`
	CanPropose       bool    `json:"can_propose"`
	CanApplyDirectly bool    `json:"can_apply_directly"`
	RequiresApproval bool    `json:"requires_approval"`
}

// ShareOf returns the actor's equity percentage. A business without an
// explicit partner list is wholly owned by its creator.
func ShareOf(b *Business, actorID string) float64 {
	if b == nil || actorID == "" {
		return 0
	}
	if len(b.Partners) == 0 {
		if b.OwnerID == "" || b.OwnerID == actorID {
			return FullShare
		}
		return 0
	}
	for _, p := range b.Partners {
		if p.ActorID == actorID {
			return clampShare(p.Share)
		}
	}
	return 0
}

// ShareFraction is ShareOf clamped to [0,100] and scaled to [0,1].
func ShareFraction(b *Business, actorID string) float64 {
	return clampShare(ShareOf(b, actorID)) / FullShare
}

// Resolve decides whether actorID may apply changes directly, must propose,
// or has no say at all.
func Resolve(b *Business, actorID string) Rights {
	share := ShareOf(b, actorID)
	return Rights{
		Share:            share,
		CanPropose:       share >= MajorityShare,
		CanApplyDirectly: share > MajorityShare,
		RequiresApproval: share == MajorityShare,
	}
}

// Check returns ErrInsufficientRights for actors below the proposal threshold.
func (r Rights) Check() error {
	if !r.CanPropose {
		return ErrInsufficientRights
	}
	return nil
}

// Counterpart returns the other holder when exactly two partners exist.
func Counterpart(b *Business, actorID string) (string, bool) {
	if b == nil || len(b.Partners) != 2 {
		return "", false
	}
	switch actorID {
	case b.Partners[0].ActorID:
		return b.Partners[1].ActorID, true
	case b.Partners[1].ActorID:
		return b.Partners[0].ActorID, true
	}
	return "", false
}

// OtherPartners lists every partner except actorID, in partition order.
func OtherPartners(b *Business, actorID string) []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.Partners))
	for _, p := range b.Partners {
		if p.ActorID != actorID {
			out = append(out, p.ActorID)
		}
	}
	return out
}

func clampShare(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > FullShare {
		return FullShare
	}
	return v
}
