package models

// Product is sellable reference data. Price is in minor currency units.
type Product struct {
	ProductID  string `json:"productid" bson:"productid"`
	Name       string `json:"name" bson:"name"`
	Price      int64  `json:"price" bson:"price"`
	CategoryID string `json:"categoryid" bson:"categoryid"`
	Available  bool   `json:"available" bson:"available"`
	Image      string `json:"image,omitempty" bson:"image,omitempty"`
}

type ProductCategory struct {
	CategoryID string `json:"categoryid" bson:"categoryid"`
	Name       string `json:"name" bson:"name"`
}

// Table is a seating spot in a club or venue.
type Table struct {
	TableID string `json:"tableid" bson:"tableid"`
	Name    string `json:"name" bson:"name"`
	Seats   int    `json:"seats" bson:"seats"`
	Status  string `json:"status" bson:"status"` // e.g. "free", "occupied", "reserved"
}
