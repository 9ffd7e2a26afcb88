package books

// SampleCatalogue is the starter set of books loaded by the seed command.
func SampleCatalogue() []CreateInput {
	return []CreateInput{
		{
			Title:       "The Great Gatsby",
			Author:      "F. Scott Fitzgerald",
			Description: "A portrait of the Jazz Age told through the mysterious millionaire Jay Gatsby and his longing for Daisy Buchanan.",
		},
		{
			Title:       "To Kill a Mockingbird",
			Author:      "Harper Lee",
			Description: "Scout Finch grows up in a small Alabama town while her father defends a Black man falsely accused of a crime.",
		},
		{
			Title:       "1984",
			Author:      "George Orwell",
			Description: "Winston Smith struggles against the all-seeing Party in a totalitarian state where truth is rewritten daily.",
		},
		{
			Title:       "Pride and Prejudice",
			Author:      "Jane Austen",
			Description: "Elizabeth Bennet and Mr. Darcy navigate manners, marriage and misjudgement in Regency England.",
		},
		{
			Title:       "The Catcher in the Rye",
			Author:      "J.D. Salinger",
			Description: "Holden Caulfield wanders New York City after leaving school, wrestling with grief and the phoniness of adulthood.",
		},
		{
			Title:       "Harry Potter and the Philosopher's Stone",
			Author:      "J.K. Rowling",
			Description: "An orphaned boy discovers he is a wizard and begins his first year at Hogwarts School of Witchcraft and Wizardry.",
		},
		{
			Title:       "The Lord of the Rings",
			Author:      "J.R.R. Tolkien",
			Description: "Frodo Baggins sets out with a fellowship to destroy the One Ring before the Dark Lord Sauron reclaims it.",
		},
		{
			Title:       "Dune",
			Author:      "Frank Herbert",
			Description: "Paul Atreides is drawn into the politics and prophecy of the desert planet Arrakis, sole source of the spice.",
		},
	}
}
