package catalog

// DefaultData is the catalog the service ships with.
func DefaultData() Data {
	return Data{
		Vehicles: []Vehicle{
			{ID: "van-s", Name: "City Van S", BasePrice: 18990},
			{ID: "van-m", Name: "Transit M", BasePrice: 23990},
			{ID: "truck-l", Name: "Cargo Truck L", BasePrice: 44990},
		},
		Colors: []Item{
			{Code: "WHI", Name: "Arctic White", Price: 0},
			{Code: "BLK", Name: "Midnight Black", Price: 450},
			{Code: "SLV", Name: "Glacier Silver", Price: 450},
			{Code: "RED", Name: "Signal Red", Price: 690},
		},
		Upholsteries: []Item{
			{Code: "FAB-G", Name: "Fabric Grey", Price: 0},
			{Code: "FAB-B", Name: "Fabric Black", Price: 120},
			{Code: "LEA-B", Name: "Leather Black", Price: 890},
		},
		FactoryOptions: []Item{
			{Code: "PKG-COMF", Name: "Comfort Package", Price: 990},
			{Code: "NAV-PRO", Name: "Navigation Pro", Price: 1290},
			{Code: "ACC-ADAPT", Name: "Adaptive Cruise Control", Price: 790},
			{Code: "CAM-360", Name: "360° Camera", Price: 650},
		},
		Accessories: []Item{
			{Code: "MAT-RUB", Name: "Rubber Floor Mats", Price: 99},
			{Code: "RACK-ROOF", Name: "Roof Rack", Price: 299},
			{Code: "BOX-TOOL", Name: "Tool Storage Box", Price: 179},
		},
	}
}

// Default builds a Store from DefaultData. The seed data is known to be valid.
func Default() *Store {
	s, err := New(DefaultData())
	if err != nil {
		panic(err)
	}
	return s
}
