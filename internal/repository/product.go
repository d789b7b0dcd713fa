package repository

import (
	"context"
	"fmt"

	"craftchain/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	Seed(ctx context.Context) error
	FindByID(ctx context.Context, productID string) (*model.Product, error)
	List(ctx context.Context) ([]*model.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) ([]*model.Product, error)
}

// seedProducts is the demo catalog. Prices are in paise.
var seedProducts = []model.Product{
	{
		ID: "craft_madhubani_001", Name: "Madhubani Fish Painting",
		Description: "Hand-painted Madhubani artwork on handmade paper using natural pigments.",
		Price:       125000, Currency: "INR", Category: "Painting",
		ImageURL:    "/images/products/madhubani-fish.jpg",
		ArtisanName: "Sita Devi", ArtisanAddress: "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		Location: "Madhubani, Bihar", InStock: true,
	},
	{
		ID: "craft_pashmina_002", Name: "Kashmiri Pashmina Shawl",
		Description: "Hand-spun and hand-woven pashmina with sozni embroidery.",
		Price:       850000, Currency: "INR", Category: "Textile",
		ImageURL:    "/images/products/pashmina.jpg",
		ArtisanName: "Ghulam Nabi", ArtisanAddress: "0x2546BcD3c84621e976D8185a91A922aE77ECEc30",
		Location: "Srinagar, Jammu & Kashmir", InStock: true,
	},
	{
		ID: "craft_bidri_003", Name: "Bidriware Vase",
		Description: "Zinc-copper alloy vase inlaid with pure silver in the Bidri tradition.",
		Price:       420000, Currency: "INR", Category: "Metalwork",
		ImageURL:    "/images/products/bidri-vase.jpg",
		ArtisanName: "Mohammed Rafi", ArtisanAddress: "0xbDA5747bFD65F08deb54cb465eB87D40e51B197E",
		Location: "Bidar, Karnataka", InStock: true,
	},
	{
		ID: "craft_blue_pottery_004", Name: "Jaipur Blue Pottery Plate",
		Description: "Quartz-based blue pottery plate with hand-painted floral motifs.",
		Price:       1250, Currency: "INR", Category: "Pottery",
		ImageURL:    "/images/products/blue-pottery.jpg",
		ArtisanName: "Kripal Singh", ArtisanAddress: "0xdD2FD4581271e230360230F9337D5c0430Bf44C0",
		Location: "Jaipur, Rajasthan", InStock: true,
	},
	{
		ID: "craft_dhokra_005", Name: "Dhokra Tribal Horse",
		Description: "Lost-wax cast brass figurine made by Dhokra metalsmiths.",
		Price:       275000, Currency: "INR", Category: "",
		ImageURL:    "/images/products/dhokra-horse.jpg",
		ArtisanName: "Lakhi Karmakar", ArtisanAddress: "",
		Location: "Bankura, West Bengal", InStock: false,
	},
}

// SeedProducts returns a copy of the demo catalog.
func SeedProducts() []model.Product {
	out := make([]model.Product, len(seedProducts))
	copy(out, seedProducts)
	return out
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{
		db: db,
	}
}

func (r *productRepoImpl) Seed(ctx context.Context) error {
	products := SeedProducts()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&products).Error
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	return nil
}

func (r *productRepoImpl) FindByID(ctx context.Context, productID string) (*model.Product, error) {
	var product model.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", productID).
		First(&product).Error

	if err != nil {
		return nil, notFoundOr(err, "find product "+productID)
	}

	return &product, nil
}

func (r *productRepoImpl) List(ctx context.Context) ([]*model.Product, error) {
	var products []*model.Product
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id ASC").
		Find(&products).
		Error

	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	return products, nil
}

func (r *productRepoImpl) FindByIDs(ctx context.Context, productIDs []string) ([]*model.Product, error) {
	var products []*model.Product
	if len(productIDs) == 0 {
		return products, nil
	}

	err := r.db.WithContext(ctx).
		Where("id IN ?", productIDs).
		Order("created_at DESC, id ASC").
		Find(&products).
		Error

	if err != nil {
		return nil, fmt.Errorf("find products by ids: %w", err)
	}

	return products, nil
}
