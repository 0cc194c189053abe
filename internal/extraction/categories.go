package extraction

// Categories are the marketplace categories items are sorted into.
var Categories = []string{
	"Electronics",
	"Furniture",
	"Home & Kitchen",
	"Clothing & Accessories",
	"Books & Media",
	"Sports & Outdoors",
	"Toys & Games",
	"Tools & DIY",
	"Art & Decor",
	"Other",
}
