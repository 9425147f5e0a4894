package catalog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	shopBucketName    = "shops"
	addressBucketName = "addresses"
)

// Catalog is the read-only lookup surface the import pipeline
// consumes. A nil record with a nil error means no match, which is an
// expected outcome for the matcher, not a failure. Implementations
// must be safe for concurrent reads.
type Catalog interface {
	// FindShopByName returns the shop with exactly this name, or
	// failing that the first shop whose name contains it.
	FindShopByName(name string) (*Shop, error)

	// FindAddressByPostalCode returns the shop's address with the
	// given postal code.
	FindAddressByPostalCode(shopID int64, postalCode string) (*ShopAddress, error)

	// FindAddressByStreet returns the shop's first address whose
	// street contains the given fragment.
	FindAddressByStreet(shopID int64, streetFragment string) (*ShopAddress, error)

	// PrimaryOrFirstAddress returns the shop's primary address, or
	// its first address if none is marked primary.
	PrimaryOrFirstAddress(shopID int64) (*ShopAddress, error)
}

// BoltDB implements the catalog on BoltDB.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens (or creates) a catalog database at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(shopBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(addressBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveShop saves a shop, assigning an ID if it has none yet.
func (b *BoltDB) SaveShop(shop *Shop) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(shopBucketName))
		if shop.ID == 0 {
			seq, err := bucket.NextSequence()
			if err != nil {
				return fmt.Errorf("assigning shop id: %w", err)
			}
			shop.ID = int64(seq)
		}
		data, err := json.Marshal(shop)
		if err != nil {
			return fmt.Errorf("marshaling shop: %w", err)
		}
		return bucket.Put(itob(shop.ID), data)
	})
}

// SaveAddress saves a shop address, assigning an ID if it has none yet.
func (b *BoltDB) SaveAddress(address *ShopAddress) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(shopBucketName)).Get(itob(address.ShopID)) == nil {
			return fmt.Errorf("shop not found: %d", address.ShopID)
		}
		bucket := tx.Bucket([]byte(addressBucketName))
		if address.ID == 0 {
			seq, err := bucket.NextSequence()
			if err != nil {
				return fmt.Errorf("assigning address id: %w", err)
			}
			address.ID = int64(seq)
		}
		data, err := json.Marshal(address)
		if err != nil {
			return fmt.Errorf("marshaling address: %w", err)
		}
		return bucket.Put(itob(address.ID), data)
	})
}

// GetShop retrieves a shop by ID.
func (b *BoltDB) GetShop(id int64) (*Shop, error) {
	var shop *Shop
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(shopBucketName)).Get(itob(id))
		if data == nil {
			return fmt.Errorf("shop not found: %d", id)
		}
		return json.Unmarshal(data, &shop)
	})
	if err != nil {
		return nil, err
	}
	return shop, nil
}

// ListShops returns all shops in ID order.
func (b *BoltDB) ListShops() ([]*Shop, error) {
	shops := make([]*Shop, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(shopBucketName)).ForEach(func(k, v []byte) error {
			var shop Shop
			if err := json.Unmarshal(v, &shop); err != nil {
				return fmt.Errorf("unmarshaling shop: %w", err)
			}
			shops = append(shops, &shop)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return shops, nil
}

// ListAddresses returns all addresses of one shop in ID order.
func (b *BoltDB) ListAddresses(shopID int64) ([]*ShopAddress, error) {
	addresses := make([]*ShopAddress, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(addressBucketName)).ForEach(func(k, v []byte) error {
			var address ShopAddress
			if err := json.Unmarshal(v, &address); err != nil {
				return fmt.Errorf("unmarshaling address: %w", err)
			}
			if address.ShopID == shopID {
				addresses = append(addresses, &address)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return addresses, nil
}

// FindShopByName returns the exact-name match if one exists, else the
// first shop (in ID order) whose name contains the given name,
// case-insensitively. Nil when nothing matches.
func (b *BoltDB) FindShopByName(name string) (*Shop, error) {
	shops, err := b.ListShops()
	if err != nil {
		return nil, err
	}

	for _, shop := range shops {
		if shop.Name == name {
			return shop, nil
		}
	}

	lower := strings.ToLower(name)
	for _, shop := range shops {
		if strings.Contains(strings.ToLower(shop.Name), lower) {
			return shop, nil
		}
	}

	return nil, nil
}

// FindAddressByPostalCode returns the shop's address with the given
// postal code, or nil.
func (b *BoltDB) FindAddressByPostalCode(shopID int64, postalCode string) (*ShopAddress, error) {
	addresses, err := b.ListAddresses(shopID)
	if err != nil {
		return nil, err
	}
	for _, address := range addresses {
		if address.PostalCode == postalCode {
			return address, nil
		}
	}
	return nil, nil
}

// FindAddressByStreet returns the shop's first address whose street
// contains the fragment, case-insensitively, or nil.
func (b *BoltDB) FindAddressByStreet(shopID int64, streetFragment string) (*ShopAddress, error) {
	addresses, err := b.ListAddresses(shopID)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(streetFragment)
	for _, address := range addresses {
		if strings.Contains(strings.ToLower(address.Street), lower) {
			return address, nil
		}
	}
	return nil, nil
}

// PrimaryOrFirstAddress returns the shop's primary address, falling
// back to the first address in ID order. Nil when the shop has no
// addresses.
func (b *BoltDB) PrimaryOrFirstAddress(shopID int64) (*ShopAddress, error) {
	addresses, err := b.ListAddresses(shopID)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, nil
	}
	for _, address := range addresses {
		if address.IsPrimary {
			return address, nil
		}
	}
	return addresses[0], nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}
