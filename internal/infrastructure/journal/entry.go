package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/domain/values"
)

// Hash is a SHA-256 digest linking an entry to its predecessor
type Hash [sha256.Size]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// HashFromBytes copies a stored digest
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Entry is one sealed journal record. Data is the canonical CBOR encoding
// of the event and Hash = SHA-256(PrevHash || Data).
type Entry struct {
	Seq       uint64
	EventID   uuid.UUID
	Type      auction.EventType
	AuctionID uint64
	At        time.Time
	PrevHash  Hash
	Hash      Hash
	Data      []byte
}

// record is the hashed representation. Integer keys keep it compact, and
// amounts are decimal strings so no precision depends on the encoder.
type record struct {
	Seq       uint64 `cbor:"1,keyasint"`
	EventID   []byte `cbor:"2,keyasint"`
	Type      string `cbor:"3,keyasint"`
	At        int64  `cbor:"4,keyasint"`
	AuctionID uint64 `cbor:"5,keyasint"`

	Title         string `cbor:"10,keyasint,omitempty"`
	Description   string `cbor:"11,keyasint,omitempty"`
	Party         []byte `cbor:"12,keyasint,omitempty"`
	StartingPrice string `cbor:"13,keyasint,omitempty"`
	EndTime       int64  `cbor:"14,keyasint,omitempty"`
	Amount        string `cbor:"15,keyasint,omitempty"`
	Deposit       string `cbor:"16,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Seal encodes ev and chains it to prev
func Seal(prev Hash, ev auction.Event) (Entry, error) {
	rec, err := toRecord(ev)
	if err != nil {
		return Entry{}, err
	}
	data, err := encMode.Marshal(rec)
	if err != nil {
		return Entry{}, fmt.Errorf("encode event %d: %w", ev.Seq, err)
	}

	return Entry{
		Seq:       ev.Seq,
		EventID:   ev.ID,
		Type:      ev.Type,
		AuctionID: ev.AuctionID(),
		At:        ev.At.UTC(),
		PrevHash:  prev,
		Hash:      chain(prev, data),
		Data:      data,
	}, nil
}

func chain(prev Hash, data []byte) Hash {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Event decodes the entry back into a ledger event
func (e Entry) Event() (auction.Event, error) {
	var rec record
	if err := decMode.Unmarshal(e.Data, &rec); err != nil {
		return auction.Event{}, fmt.Errorf("decode entry %d: %w", e.Seq, err)
	}
	if rec.Seq != e.Seq {
		return auction.Event{}, fmt.Errorf("entry %d carries seq %d", e.Seq, rec.Seq)
	}
	return fromRecord(rec)
}

func toRecord(ev auction.Event) (record, error) {
	rec := record{
		Seq:     ev.Seq,
		EventID: append([]byte(nil), ev.ID[:]...),
		Type:    string(ev.Type),
		At:      ev.At.UnixNano(),
	}

	switch p := ev.Payload.(type) {
	case auction.AuctionCreated:
		rec.AuctionID = p.AuctionID
		rec.Title = p.Title
		rec.Description = p.Description
		rec.Party = p.Seller[:]
		rec.StartingPrice = p.StartingPrice.String()
		rec.EndTime = p.EndTime.UnixNano()
	case auction.BidPlaced:
		rec.AuctionID = p.AuctionID
		rec.Party = p.Bidder[:]
		rec.Amount = p.Amount.String()
		rec.Deposit = p.Deposit.String()
	case auction.AuctionEnded:
		rec.AuctionID = p.AuctionID
		rec.Party = p.Winner[:]
		rec.Amount = p.Amount.String()
	case auction.FundsWithdrawn:
		rec.AuctionID = p.AuctionID
		rec.Party = p.Bidder[:]
		rec.Amount = p.Amount.String()
	case auction.PayoutDeferred:
		rec.AuctionID = p.AuctionID
		rec.Party = p.Seller[:]
		rec.Amount = p.Amount.String()
	case auction.WithdrawalReverted:
		rec.AuctionID = p.AuctionID
		rec.Party = p.Bidder[:]
		rec.Amount = p.Amount.String()
	default:
		return record{}, fmt.Errorf("unsupported payload %T", ev.Payload)
	}
	return rec, nil
}

func fromRecord(rec record) (auction.Event, error) {
	id, err := uuid.FromBytes(rec.EventID)
	if err != nil {
		return auction.Event{}, fmt.Errorf("event id: %w", err)
	}
	party, err := identity(rec.Party)
	if err != nil {
		return auction.Event{}, err
	}

	ev := auction.Event{
		Seq:  rec.Seq,
		ID:   id,
		Type: auction.EventType(rec.Type),
		At:   time.Unix(0, rec.At).UTC(),
	}

	switch ev.Type {
	case auction.EventAuctionCreated:
		price, err := amount(rec.StartingPrice)
		if err != nil {
			return auction.Event{}, err
		}
		ev.Payload = auction.AuctionCreated{
			AuctionID:     rec.AuctionID,
			Title:         rec.Title,
			Description:   rec.Description,
			Seller:        party,
			StartingPrice: price,
			EndTime:       time.Unix(0, rec.EndTime).UTC(),
		}
	case auction.EventBidPlaced:
		amt, err := amount(rec.Amount)
		if err != nil {
			return auction.Event{}, err
		}
		deposit, err := amount(rec.Deposit)
		if err != nil {
			return auction.Event{}, err
		}
		ev.Payload = auction.BidPlaced{AuctionID: rec.AuctionID, Bidder: party, Amount: amt, Deposit: deposit}
	case auction.EventAuctionEnded:
		amt, err := amount(rec.Amount)
		if err != nil {
			return auction.Event{}, err
		}
		ev.Payload = auction.AuctionEnded{AuctionID: rec.AuctionID, Winner: party, Amount: amt}
	case auction.EventFundsWithdrawn:
		amt, err := amount(rec.Amount)
		if err != nil {
			return auction.Event{}, err
		}
		ev.Payload = auction.FundsWithdrawn{AuctionID: rec.AuctionID, Bidder: party, Amount: amt}
	case auction.EventPayoutDeferred:
		amt, err := amount(rec.Amount)
		if err != nil {
			return auction.Event{}, err
		}
		ev.Payload = auction.PayoutDeferred{AuctionID: rec.AuctionID, Seller: party, Amount: amt}
	case auction.EventWithdrawalReverted:
		amt, err := amount(rec.Amount)
		if err != nil {
			return auction.Event{}, err
		}
		ev.Payload = auction.WithdrawalReverted{AuctionID: rec.AuctionID, Bidder: party, Amount: amt}
	default:
		return auction.Event{}, fmt.Errorf("unknown event type %q", rec.Type)
	}
	return ev, nil
}

func identity(b []byte) (values.Identity, error) {
	var id values.Identity
	if len(b) == 0 {
		return id, nil
	}
	if len(b) != values.IdentityLength {
		return id, fmt.Errorf("identity must be %d bytes, got %d", values.IdentityLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// amount treats an omitted field as zero
func amount(s string) (values.Amount, error) {
	if s == "" {
		return values.Zero, nil
	}
	return values.ParseAmount(s)
}
